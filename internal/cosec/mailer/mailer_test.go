package mailer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuild(t *testing.T) {
	m, err := Build(&Message{
		From:    "secretarial@example.com",
		To:      []string{"alice@example.com", "bob@example.com"},
		Subject: "Board Resolution",
		Body:    "Please find attached.",
		Attachments: []Attachment{
			{Filename: "resolution.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Board Resolution")
	assert.Contains(t, raw, "alice@example.com")
	assert.Contains(t, raw, "bob@example.com")
	assert.Contains(t, raw, `filename="resolution.pdf"`)
	assert.Contains(t, raw, "application/pdf")
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(&Message{From: "secretarial@example.com"})
	assert.Error(t, err, "no recipients")

	_, err = Build(&Message{From: "not an address", To: []string{"a@example.com"}})
	assert.Error(t, err)
}

func TestLogTransport(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	tr := NewLogTransport(zap.New(core))

	require.NoError(t, tr.Send(context.Background(), &Message{To: []string{"a@example.com"}, Subject: "hi"}))
	assert.Equal(t, 1, recorded.FilterMessage("Email not sent, no SMTP host configured").Len())
}

func TestRender(t *testing.T) {
	data := map[string]string{"CompanyName": "EXAMPLE SDN BHD"}
	subject, body, err := Render("[Reminder] {{.CompanyName}}", "\nDear {{.CompanyName}},\n", data)
	require.NoError(t, err)
	assert.Equal(t, "[Reminder] EXAMPLE SDN BHD", subject)
	assert.Equal(t, "Dear EXAMPLE SDN BHD,", body)

	_, _, err = Render("{{.Broken", "", data)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("{{.CompanyName}}", "{{range .Today}}{{.CompanyName}}{{end}}"))
	assert.Error(t, Validate("{{.CompanyName", ""))
	assert.Error(t, Validate("", "{{end}}"))
}
