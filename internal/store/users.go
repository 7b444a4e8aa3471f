package store

import (
	"time"

	"gorm.io/gorm"
)

// CareMember is a resolved caregiver or doctor reference
type CareMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CareTeam is the set of users currently linked to a patient
type CareTeam struct {
	Caregivers []CareMember `json:"caregivers"`
	Doctors    []CareMember `json:"doctors"`
}

func (s *Store) CreateUser(user *User) error {
	if user.ID == "" {
		user.ID = generateID("usr")
	}
	user.CaregiversJSON = marshalStrings(user.Caregivers)
	user.DoctorsJSON = marshalStrings(user.Doctors)
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	return s.db.Create(user).Error
}

func (s *Store) GetUser(id string) (*User, error) {
	var user User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Caregivers = unmarshalStrings(user.CaregiversJSON)
	user.Doctors = unmarshalStrings(user.DoctorsJSON)
	return &user, nil
}

func (s *Store) UpdateUser(user *User) error {
	user.CaregiversJSON = marshalStrings(user.Caregivers)
	user.DoctorsJSON = marshalStrings(user.Doctors)
	user.UpdatedAt = time.Now()
	return s.db.Save(user).Error
}

// ListActivePatients returns every active user with the patient role.
// Feeds the periodic alert sweep.
func (s *Store) ListActivePatients() ([]User, error) {
	var users []User
	err := s.db.Where("role = ? AND is_active = ?", RolePatient, true).Find(&users).Error
	for i := range users {
		users[i].Caregivers = unmarshalStrings(users[i].CaregiversJSON)
		users[i].Doctors = unmarshalStrings(users[i].DoctorsJSON)
	}
	return users, err
}

// GetCareTeam resolves the caregiver and doctor links of a patient to
// (id, name) pairs. Linked users that no longer exist are skipped.
func (s *Store) GetCareTeam(userID string) (*CareTeam, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	team := &CareTeam{
		Caregivers: []CareMember{},
		Doctors:    []CareMember{},
	}

	resolve := func(ids []string) []CareMember {
		var members []CareMember
		for _, id := range ids {
			var u User
			if err := s.db.Select("id", "name").Where("id = ?", id).First(&u).Error; err != nil {
				continue
			}
			members = append(members, CareMember{ID: u.ID, Name: u.Name})
		}
		return members
	}

	if members := resolve(user.Caregivers); members != nil {
		team.Caregivers = members
	}
	if members := resolve(user.Doctors); members != nil {
		team.Doctors = members
	}

	return team, nil
}

// ==================== Medicine operations ====================

func (s *Store) CreateMedicine(med *Medicine) error {
	if med.ID == "" {
		med.ID = generateID("med")
	}
	if med.LowStockDays == 0 {
		med.LowStockDays = 7
	}
	med.ReminderTimesJSON = marshalStrings(med.ReminderTimes)
	med.CreatedAt = time.Now()
	med.UpdatedAt = time.Now()
	return s.db.Create(med).Error
}

func (s *Store) GetMedicine(id string) (*Medicine, error) {
	var med Medicine
	err := s.db.Where("id = ?", id).First(&med).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	med.ReminderTimes = unmarshalStrings(med.ReminderTimesJSON)
	return &med, nil
}

func (s *Store) UpdateMedicine(med *Medicine) error {
	med.ReminderTimesJSON = marshalStrings(med.ReminderTimes)
	med.UpdatedAt = time.Now()
	return s.db.Save(med).Error
}

// ListActiveMedicines returns a user's active prescriptions
func (s *Store) ListActiveMedicines(userID string) ([]Medicine, error) {
	var meds []Medicine
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").Find(&meds).Error
	for i := range meds {
		meds[i].ReminderTimes = unmarshalStrings(meds[i].ReminderTimesJSON)
	}
	return meds, err
}

// DecrementStock consumes qty doses from a medicine's stock. Returns false
// without modifying the record when stock is insufficient.
func (s *Store) DecrementStock(medicineID string, qty int) (bool, error) {
	med, err := s.GetMedicine(medicineID)
	if err != nil {
		return false, err
	}
	if med == nil {
		return false, gorm.ErrRecordNotFound
	}
	if med.Stock < qty {
		return false, nil
	}
	med.Stock -= qty
	return true, s.UpdateMedicine(med)
}
