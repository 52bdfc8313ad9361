package store

import (
	"time"

	"pillarfunnel/pkg/domain"
)

// QuizSubmissionModel maps the quiz_submissions table. Email is indexed, not unique.
type QuizSubmissionModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"column:user_id;not null;index"`
	FirstName    string `gorm:"column:first_name"`
	LastName     string `gorm:"column:last_name"`
	Email        string `gorm:"not null;index"`
	BusinessName string `gorm:"column:business_name"`
	BusinessType string `gorm:"column:business_type"`
	Budget       string
	Timeline     string
	Committed    bool      `gorm:"not null;default:false"`
	Completed    bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (QuizSubmissionModel) TableName() string { return "quiz_submissions" }

func submissionToModel(s domain.QuizSubmission) QuizSubmissionModel {
	return QuizSubmissionModel{
		ID:           s.ID,
		UserID:       s.UserID,
		FirstName:    s.Identity.FirstName,
		LastName:     s.Identity.LastName,
		Email:        s.Identity.Email,
		BusinessName: s.Answers.BusinessName,
		BusinessType: string(s.Answers.BusinessType),
		Budget:       string(s.Answers.Budget),
		Timeline:     string(s.Answers.Timeline),
		Committed:    s.Answers.Committed,
		Completed:    s.Completed,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func submissionFromModel(m QuizSubmissionModel) domain.QuizSubmission {
	return domain.QuizSubmission{
		ID:     m.ID,
		UserID: m.UserID,
		Identity: domain.Identity{
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Email:     m.Email,
		},
		Answers: domain.QuizAnswers{
			BusinessName: m.BusinessName,
			BusinessType: domain.BusinessType(m.BusinessType),
			Budget:       domain.Budget(m.Budget),
			Timeline:     domain.Timeline(m.Timeline),
			Committed:    m.Committed,
		},
		Completed: m.Completed,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// answerColumns is the column set touched when an existing submission is updated.
func answerColumns(a domain.QuizAnswers, now time.Time) map[string]any {
	return map[string]any{
		"business_name": a.BusinessName,
		"business_type": string(a.BusinessType),
		"budget":        string(a.Budget),
		"timeline":      string(a.Timeline),
		"committed":     a.Committed,
		"updated_at":    now,
	}
}
