package domain

import (
	"strings"
	"time"
)

type BusinessType string

const (
	BusinessRealEstateAgent    BusinessType = "Licensed Real Estate Agent"
	BusinessRealEstateInvestor BusinessType = "Real Estate Investor"
	BusinessSkilledTrade       BusinessType = "Skilled Trade"
	BusinessLocalService       BusinessType = "Local Service Business"
	BusinessProfessional       BusinessType = "Professional Service"
	BusinessRestaurant         BusinessType = "Restaurant/Food Service"
	BusinessRetail             BusinessType = "Retail"
	BusinessTechnology         BusinessType = "Technology"
	BusinessHealthcare         BusinessType = "Healthcare"
	BusinessEducation          BusinessType = "Education"
	BusinessFitness            BusinessType = "Fitness/Wellness"
	BusinessEventPlanning      BusinessType = "Event Planning"
	BusinessOther              BusinessType = "Other"
)

// BusinessTypes lists the options offered by the qualification quiz, in display order.
var BusinessTypes = []BusinessType{
	BusinessRealEstateAgent,
	BusinessRealEstateInvestor,
	BusinessSkilledTrade,
	BusinessLocalService,
	BusinessProfessional,
	BusinessRestaurant,
	BusinessRetail,
	BusinessTechnology,
	BusinessHealthcare,
	BusinessEducation,
	BusinessFitness,
	BusinessEventPlanning,
	BusinessOther,
}

type Budget string

const (
	Budget1kTo3k  Budget = "$1,000 - $3,000"
	Budget3kTo5k  Budget = "$3,000 - $5,000"
	Budget5kTo10k Budget = "$5,000 - $10,000"
	Budget10kPlus Budget = "$10,000+"
)

var Budgets = []Budget{Budget1kTo3k, Budget3kTo5k, Budget5kTo10k, Budget10kPlus}

type Timeline string

const (
	TimelineASAP       Timeline = "ASAP (1-2 weeks)"
	TimelineSoon       Timeline = "Soon (3-4 weeks)"
	TimelineTwoMonths  Timeline = "Within 2 months"
	TimelineSixMonths  Timeline = "Within 3-6 months"
	TimelineFuturePlan Timeline = "Future planning"
)

var Timelines = []Timeline{TimelineASAP, TimelineSoon, TimelineTwoMonths, TimelineSixMonths, TimelineFuturePlan}

// Valid reports whether b is one of the offered options. Empty is not valid.
func (b BusinessType) Valid() bool {
	for _, v := range BusinessTypes {
		if v == b {
			return true
		}
	}
	return false
}

func (b Budget) Valid() bool {
	for _, v := range Budgets {
		if v == b {
			return true
		}
	}
	return false
}

func (t Timeline) Valid() bool {
	for _, v := range Timelines {
		if v == t {
			return true
		}
	}
	return false
}

// Identity is the visitor's contact data captured at registration.
type Identity struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Complete reports whether all three identity fields are present.
func (i Identity) Complete() bool {
	return strings.TrimSpace(i.FirstName) != "" &&
		strings.TrimSpace(i.LastName) != "" &&
		strings.TrimSpace(i.Email) != ""
}

// Normalized trims whitespace and lower-cases the email.
func (i Identity) Normalized() Identity {
	return Identity{
		FirstName: strings.TrimSpace(i.FirstName),
		LastName:  strings.TrimSpace(i.LastName),
		Email:     strings.ToLower(strings.TrimSpace(i.Email)),
	}
}

// SplitFullName turns a single "full name" field into first and last name.
// Everything after the first word is treated as the last name.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// QuizAnswers holds the qualification fields, filled incrementally.
type QuizAnswers struct {
	BusinessName string       `json:"businessName"`
	BusinessType BusinessType `json:"businessType"`
	Budget       Budget       `json:"budget"`
	Timeline     Timeline     `json:"timeline"`
	Committed    bool         `json:"committed"`
}

// HasBusinessInfo reports whether any business field has been filled in.
func (a QuizAnswers) HasBusinessInfo() bool {
	return strings.TrimSpace(a.BusinessName) != "" ||
		a.BusinessType != "" ||
		a.Budget != "" ||
		a.Timeline != ""
}

// FillFrom returns a copy of a where stored non-empty values replace the current ones.
// Empty stored values never clear what is already there; Committed is OR-ed.
func (a QuizAnswers) FillFrom(stored QuizAnswers) QuizAnswers {
	out := a
	if stored.BusinessName != "" {
		out.BusinessName = stored.BusinessName
	}
	if stored.BusinessType != "" {
		out.BusinessType = stored.BusinessType
	}
	if stored.Budget != "" {
		out.Budget = stored.Budget
	}
	if stored.Timeline != "" {
		out.Timeline = stored.Timeline
	}
	out.Committed = out.Committed || stored.Committed
	return out
}

// QuizSubmission is the persisted union of identity and answers, one per email.
type QuizSubmission struct {
	ID        string      `json:"-"`
	UserID    string      `json:"userId"`
	Identity  Identity    `json:"identity"`
	Answers   QuizAnswers `json:"answers"`
	Completed bool        `json:"completed"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Registration is the payload of the registration form.
type Registration struct {
	Identity Identity
}

// Qualification is the payload of the qualification quiz.
type Qualification struct {
	Identity Identity
	Answers  QuizAnswers
}

type EventKind string

const (
	EventRegistration  EventKind = "registration_submitted"
	EventQualification EventKind = "qualification_submitted"
	EventReturnVisit   EventKind = "return_visit"
)

type NoticeVariant string

const (
	NoticeDefault     NoticeVariant = "default"
	NoticeDestructive NoticeVariant = "destructive"
)

// Notice is the user-facing toast shown after a submission.
type Notice struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Variant     NoticeVariant `json:"variant"`
}
