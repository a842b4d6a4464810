package seeder

import (
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Attendee is the body of a manual submission.
type Attendee struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
	Location    string `json:"location,omitempty"`
	Company     string `json:"company,omitempty"`
	JobTitle    string `json:"jobTitle,omitempty"`
}

// ExtractedField mirrors one field of an optical extraction.
type ExtractedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Capture is the body of an OCR capture submission.
type Capture struct {
	Fields map[string]ExtractedField `json:"fields"`
}

// Generator produces attendees from a seeded faker so runs are repeatable.
type Generator struct {
	faker *gofakeit.Faker
	seen  []Attendee
}

// NewGenerator returns a generator seeded with seed, or the clock when seed is 0.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{faker: gofakeit.New(seed)}
}

// Generate builds cfg.Count submissions.
func (g *Generator) Generate(cfg *Config) []Submission {
	subs := make([]Submission, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		var (
			a   Attendee
			dup bool
		)
		if len(g.seen) > 0 && g.faker.Float64Range(0, 1) < cfg.DuplicateRatio {
			a, dup = g.variant(g.seen[g.faker.IntRange(0, len(g.seen)-1)]), true
		} else {
			a = g.attendee()
			g.seen = append(g.seen, a)
		}

		sub := Submission{Key: uuid.NewString(), Kind: KindManual, Body: a, Duplicate: dup}
		if g.faker.Float64Range(0, 1) < cfg.CaptureRatio {
			sub.Kind, sub.Body = KindCapture, g.capture(a)
		}
		subs = append(subs, sub)
	}
	return subs
}

func (g *Generator) attendee() Attendee {
	f := g.faker
	first, last := f.FirstName(), f.LastName()
	a := Attendee{
		FullName: first + " " + last,
		Email:    slug(first) + "." + slug(last) + "@" + f.DomainName(),
		Company:  f.Company(),
		JobTitle: f.JobTitle(),
		Location: f.City(),
	}
	if f.Bool() {
		a.PhoneNumber = "+65 " + f.Numerify("9###-####")
	}
	return a
}

// variant returns the same person as a typed by a different hand: shouting
// email, a shortened name, sometimes only the phone in common.
func (g *Generator) variant(a Attendee) Attendee {
	f := g.faker
	v := a
	if i := strings.IndexByte(a.FullName, ' '); i > 0 && f.Bool() {
		v.FullName = a.FullName[:1] + "." + a.FullName[i:]
	}
	switch {
	case a.PhoneNumber != "" && f.Float64Range(0, 1) < 0.3:
		v.Email = slug(f.FirstName()) + "@" + f.DomainName()
		v.PhoneNumber = strings.ReplaceAll(a.PhoneNumber, "-", " ")
	default:
		v.Email = strings.ToUpper(a.Email[:1]) + a.Email[1:]
	}
	if f.Bool() {
		v.Company = ""
	}
	return v
}

// capture wraps a as an extraction with per-field confidence. Roughly one in
// five captures carries a field low enough to need review.
func (g *Generator) capture(a Attendee) Capture {
	f := g.faker
	fields := map[string]ExtractedField{}
	put := func(name, value string) {
		if value == "" {
			return
		}
		c := f.Float64Range(72, 99)
		if f.Float64Range(0, 1) < 0.05 {
			c = f.Float64Range(10, 44)
		}
		fields[name] = ExtractedField{Value: value, Confidence: float64(int(c*10)) / 10}
	}
	put("fullName", a.FullName)
	put("email", a.Email)
	put("phoneNumber", a.PhoneNumber)
	put("company", a.Company)
	put("jobTitle", a.JobTitle)
	return Capture{Fields: fields}
}

// slug lower-cases s and keeps only ASCII letters and digits.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "guest"
	}
	return b.String()
}
