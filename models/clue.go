package models

// Clue belongs to a chapter. AnswerHash is hex SHA-256 of the normalized answer.
type Clue struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ChapterID  uint   `gorm:"not null;uniqueIndex:idx_clue_chapter_order" json:"chapter_id"`
	OrderIndex int    `gorm:"not null;uniqueIndex:idx_clue_chapter_order" json:"order_index"`
	Prompt     string `gorm:"not null" json:"prompt"`
	AnswerHash string `gorm:"not null" json:"-"`
	Fragment   string `json:"-"`
}
