package app

import "pillarfunnel/pkg/domain"

var (
	NoticeRegistered = domain.Notice{
		Title:       "Registration successful!",
		Description: "Thank you for your interest in Pillar Web Designs.",
		Variant:     domain.NoticeDefault,
	}
	NoticeRegistrationFailed = domain.Notice{
		Title:       "Registration failed",
		Description: "Please try again later.",
		Variant:     domain.NoticeDestructive,
	}
	NoticeQualified = domain.Notice{
		Title:       "Qualification submitted!",
		Description: "Thank you for taking the time to complete our qualification quiz. We'll be in touch soon.",
		Variant:     domain.NoticeDefault,
	}
	NoticeSubmissionFailed = domain.Notice{
		Title:       "Submission failed",
		Description: "Please try again later.",
		Variant:     domain.NoticeDestructive,
	}
)
