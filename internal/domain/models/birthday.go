package models

import "time"

// Birthday is computed from a Member on request; it is never stored.
type Birthday struct {
	MemberID      string `json:"memberId"`
	Name          string `json:"name"`
	BirthDate     Date   `json:"birthDate"`
	Age           int    `json:"age"`
	DaysUntil     int    `json:"daysUntil"`
	Congratulated bool   `json:"congratulated"`
}

// BirthdayMarker records that something happened for a member on a given
// day: a congratulation, or a notification of some kind.
type BirthdayMarker struct {
	ID        string    `bson:"_id" json:"id"`
	OwnerID   string    `bson:"ownerId" json:"ownerId"`
	MemberID  string    `bson:"memberId" json:"memberId"`
	Kind      string    `bson:"kind,omitempty" json:"kind,omitempty"`
	Date      Date      `bson:"date" json:"date"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
