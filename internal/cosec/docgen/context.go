// Package docgen turns a company's records into word-processor and PDF
// documents and routes them to download, preview or email.
package docgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
)

// MaxNumberedSlots is the number of numbered director and shareholder
// placeholders (director_0_name .. director_4_name) every context carries.
// Templates written against the numbered convention can address at most this
// many people; raising it changes the template contract.
const MaxNumberedSlots = 5

// Person is the summary of a director or shareholder exposed to templates.
type Person struct {
	ID             uuid.UUID
	Name           string
	IdentityNumber string
	Email          string
}

// DirectorRow pairs directors for two-column signature blocks. Right is nil
// on the last row when the director count is odd.
type DirectorRow struct {
	Left  Person
	Right *Person
}

// Context is the data merged into a template.
type Context struct {
	Scalars      map[string]string
	Directors    []Person
	Shareholders []Person
	DirectorRows []DirectorRow
}

// BuildContext assembles the template context for company. The company must
// have its directors and shareholders loaded. A missing incorporation date
// renders as an empty string.
func BuildContext(company *models.Company, now time.Time, dateFormat string) Context {
	c := Context{Scalars: map[string]string{
		"company_name":         company.DisplayName(),
		"ssm_number":           company.RegistrationNumber,
		"registration_number":  company.RegistrationNumber,
		"incorporation_date":   formatDate(company.IncorporationDate, dateFormat),
		"branch":               string(company.Branch),
		"today":                now.Format(dateFormat),
		"generated_at":         now.Format(dateFormat + " 15:04"),
		"address_line1":        company.AddressLine1,
		"address_line2":        company.AddressLine2,
		"address_line3":        company.AddressLine3,
		"postcode":             company.Postcode,
		"town":                 company.Town,
		"state":                company.State,
		"nature_of_business_1": company.NatureOfBusiness1,
		"nature_of_business_2": company.NatureOfBusiness2,
		"nature_of_business_3": company.NatureOfBusiness3,
		"contact_name":         "",
		"contact_position":     "",
		"contact_email":        "",
	}}
	if cp := company.ContactPerson; cp != nil {
		c.Scalars["contact_name"] = cp.Name
		c.Scalars["contact_position"] = cp.Position
		c.Scalars["contact_email"] = cp.Email
	}

	for _, d := range company.Directors {
		c.Directors = append(c.Directors, Person{ID: d.ID, Name: d.FullName, IdentityNumber: d.IdentityNumber, Email: d.Email})
	}
	for _, s := range company.Shareholders {
		c.Shareholders = append(c.Shareholders, Person{ID: s.ID, Name: s.FullName, IdentityNumber: s.IdentityNumber, Email: s.Email})
	}
	c.DirectorRows = PairRows(c.Directors)

	fillSlots(c.Scalars, "director", c.Directors)
	fillSlots(c.Scalars, "shareholder", c.Shareholders)
	c.Scalars["director_count"] = fmt.Sprint(len(c.Directors))
	c.Scalars["shareholder_count"] = fmt.Sprint(len(c.Shareholders))
	return c
}

func formatDate(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// fillSlots writes <prefix>_<i>_name and <prefix>_<i>_ic for every slot,
// leaving unused slots as empty strings.
func fillSlots(scalars map[string]string, prefix string, people []Person) {
	for i := 0; i < MaxNumberedSlots; i++ {
		var p Person
		if i < len(people) {
			p = people[i]
		}
		scalars[fmt.Sprintf("%s_%d_name", prefix, i)] = p.Name
		scalars[fmt.Sprintf("%s_%d_ic", prefix, i)] = p.IdentityNumber
	}
}

// PairRows groups people two at a time, yielding ceil(len/2) rows.
func PairRows(people []Person) []DirectorRow {
	rows := make([]DirectorRow, 0, (len(people)+1)/2)
	for i := 0; i < len(people); i += 2 {
		row := DirectorRow{Left: people[i]}
		if i+1 < len(people) {
			right := people[i+1]
			row.Right = &right
		}
		rows = append(rows, row)
	}
	return rows
}

// Clone returns a copy whose scalar map can be changed without affecting c.
// The lists are shared and must be treated as read-only.
func (c Context) Clone() Context {
	scalars := make(map[string]string, len(c.Scalars)+8)
	for k, v := range c.Scalars {
		scalars[k] = v
	}
	c.Scalars = scalars
	return c
}

// WithSubject returns a copy of c carrying the fields of one director.
func (c Context) WithSubject(d *models.Director, dateFormat string) Context {
	out := c.Clone()
	out.Scalars["director_name"] = d.FullName
	out.Scalars["director_ic"] = d.IdentityNumber
	out.Scalars["director_email"] = d.Email
	out.Scalars["director_phone"] = d.PhoneNumber
	out.Scalars["director_address"] = joinNonEmpty(", ",
		d.AddressLine1, d.AddressLine2, d.AddressLine3,
		strings.TrimSpace(d.Postcode+" "+d.Town), d.State)
	out.Scalars["director_appointment_date"] = formatDate(&d.AppointmentDate, dateFormat)
	return out
}

// Placeholders flattens c into the key/value pairs a template can address.
// Lists are exposed joined and as director_rows_<i>_left/right.
func (c Context) Placeholders() map[string]string {
	out := make(map[string]string, len(c.Scalars)+2*len(c.DirectorRows)+2)
	for k, v := range c.Scalars {
		out[k] = v
	}
	out["directors"] = joinNames(c.Directors)
	out["shareholders"] = joinNames(c.Shareholders)
	for i, row := range c.DirectorRows {
		out[fmt.Sprintf("director_rows_%d_left", i)] = row.Left.Name
		right := ""
		if row.Right != nil {
			right = row.Right.Name
		}
		out[fmt.Sprintf("director_rows_%d_right", i)] = right
	}
	return out
}

func joinNames(people []Person) string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
