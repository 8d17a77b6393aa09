package model

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique; not null"`
	PasswordHash string `gorm:"not null"`

	Files []File `gorm:"foreignKey:UploaderID"`
}
