package forms

import "github.com/kampus-akademi/backend/internal/models"

// formBase is shared by every form kind.
type formBase struct {
	FullName string `form:"fullName" json:"fullName" binding:"required,max=255"`
	Email    string `form:"email" json:"email" binding:"required,email,max=255"`
	Locale   string `form:"locale" json:"locale" binding:"omitempty,max=8"`
}

func (b *formBase) base() *formBase { return b }

type submission interface {
	base() *formBase
}

type careersForm struct {
	formBase
	Phone       string `form:"phone" json:"phone" binding:"required,max=32"`
	Position    string `form:"position" json:"position" binding:"required,max=255"`
	LinkedIn    string `form:"linkedin" json:"linkedin,omitempty" binding:"omitempty,url"`
	CoverLetter string `form:"coverLetter" json:"coverLetter,omitempty" binding:"max=5000"`
}

type clubForm struct {
	formBase
	Phone      string `form:"phone" json:"phone,omitempty" binding:"max=32"`
	University string `form:"university" json:"university" binding:"required,max=255"`
	Department string `form:"department" json:"department,omitempty" binding:"max=255"`
	Year       int    `form:"year" json:"year,omitempty" binding:"omitempty,min=1,max=8"`
	Motivation string `form:"motivation" json:"motivation,omitempty" binding:"max=5000"`
}

type contactForm struct {
	formBase
	Subject string `form:"subject" json:"subject" binding:"required,max=255"`
	Message string `form:"message" json:"message" binding:"required,max=5000"`
}

type instructorForm struct {
	formBase
	Phone     string `form:"phone" json:"phone,omitempty" binding:"max=32"`
	Expertise string `form:"expertise" json:"expertise" binding:"required,max=500"`
	LinkedIn  string `form:"linkedin" json:"linkedin,omitempty" binding:"omitempty,url"`
	Bio       string `form:"bio" json:"bio,omitempty" binding:"max=5000"`
}

type kindRule struct {
	newForm            func() submission
	attachmentRequired bool
}

var kinds = map[string]kindRule{
	models.FormKindCareers:    {newForm: func() submission { return &careersForm{} }, attachmentRequired: true},
	models.FormKindClub:       {newForm: func() submission { return &clubForm{} }},
	models.FormKindContact:    {newForm: func() submission { return &contactForm{} }},
	models.FormKindInstructor: {newForm: func() submission { return &instructorForm{} }},
}
