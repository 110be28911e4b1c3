package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"autojob/internal/page"
	"autojob/internal/page/pagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolp(v bool) *bool { return &v }

func TestBuild_OrdersRequiredUnfilledFirst(t *testing.T) {
	raw := []page.Element{
		{Role: "button", Name: "Submit", InForm: true},
		{Role: "textbox", Name: "Phone", InForm: true},
		{Role: "textbox", Name: "First name", Required: true, ValueHint: "Jane", InForm: true},
		{Role: "textbox", Name: "Email", Required: true, InForm: true},
		{Role: "link", Name: "Privacy"},
		{Role: "file_input", Name: "Resume", Required: true, InForm: true},
	}

	s := Build("https://x.test/apply", raw)

	names := make([]string, 0, len(s.Items))
	for _, e := range s.Items {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Email", "Resume", "First name", "Submit", "Phone"}, names)
	assert.Equal(t, "e1", s.Items[0].Ref)

	e, ok := s.Lookup("e2")
	require.True(t, ok)
	assert.Equal(t, "file_input", e.Role)
	assert.Equal(t, 1, s.FileInputs())
}

func TestBuild_KeepsAllWhenNoForm(t *testing.T) {
	s := Build("u", []page.Element{{Role: "link", Name: "Apply"}, {Role: "button", Name: "Save"}, {Role: "heading", Name: "x"}, {Role: "button", Name: "  "}})
	require.Len(t, s.Items, 2)
	assert.Equal(t, "Save", s.Items[0].Name)
}

func TestBuild_Caps(t *testing.T) {
	var raw []page.Element
	for i := 0; i < 50; i++ {
		raw = append(raw, page.Element{Role: "button", Name: fmt.Sprintf("b%d", i)})
	}
	for _, role := range RoleOrder[1:] {
		for i := 0; i < 40; i++ {
			raw = append(raw, page.Element{Role: role, Name: fmt.Sprintf("%s%d", role, i)})
		}
	}
	s := Build("u", raw)
	assert.Len(t, s.Items, MaxTotal)

	buttons := 0
	for _, e := range s.Items {
		if e.Role == "button" {
			buttons++
		}
	}
	assert.Equal(t, MaxPerRole, buttons)
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	base := []page.Element{
		{Role: "checkbox", Name: "Agree", Checked: boolp(false)},
		{Role: "textbox", Name: "Email", ValueHint: ""},
	}
	fp := Fingerprint("https://x.test/apply#top", base)

	same := []page.Element{
		{Role: "checkbox", Name: "Agree", Checked: boolp(false)},
		{Role: "textbox", Name: "Email"},
	}
	assert.Equal(t, fp, Fingerprint("https://x.test/apply", same), "fragment is ignored")

	checked := []page.Element{
		{Role: "checkbox", Name: "Agree", Checked: boolp(true)},
		{Role: "textbox", Name: "Email"},
	}
	assert.NotEqual(t, fp, Fingerprint("https://x.test/apply", checked))

	filled := []page.Element{
		{Role: "checkbox", Name: "Agree", Checked: boolp(false)},
		{Role: "textbox", Name: "Email", ValueHint: "a@b.c"},
	}
	assert.NotEqual(t, fp, Fingerprint("https://x.test/apply", filled))

	assert.NotEqual(t, fp, Fingerprint("https://x.test/apply/2", same))
}

func TestFingerprint_OnlyFirstItemsCount(t *testing.T) {
	var items []page.Element
	for i := 0; i < FingerprintItems; i++ {
		items = append(items, page.Element{Role: "button", Name: fmt.Sprintf("b%d", i)})
	}
	fp := Fingerprint("u", items)
	more := append(append([]page.Element(nil), items...), page.Element{Role: "button", Name: "tail"})
	assert.Equal(t, fp, Fingerprint("u", more))
}

func TestStableScope(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://Boards.Greenhouse.io/acme/jobs/4012345?gh_src=x", "boards.greenhouse.io/acme"},
		{"https://jobs.lever.co/acme/1b2c3d4e-aaaa-bbbb-cccc-123456789abc/apply", "jobs.lever.co/acme/apply"},
		{"https://acme.com/careers/job/r0012345678ab/apply/step/two", "acme.com/careers/apply/step"},
		{"https://acme.com", "acme.com/"},
		{"", "unknown/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StableScope(tt.url), tt.url)
	}
}

func TestRender(t *testing.T) {
	s := Build("u", []page.Element{
		{Role: "textbox", Name: "Email", InputType: "email", Required: true},
		{Role: "checkbox", Name: "Agree", Checked: boolp(true)},
	})
	out := Render(s)
	assert.Contains(t, out, "e1 | role=textbox, type=email, required | name=Email")
	assert.Contains(t, out, "e2 | role=checkbox, checked=true | name=Agree")
	assert.Equal(t, "(no interactive elements)", Render(Snapshot{}))
}

type brokenSurface struct{ *pagetest.Page }

func (brokenSurface) Elements(context.Context) ([]page.Element, error) {
	return nil, errors.New("target closed")
}

func TestCollect_DegradesToEmpty(t *testing.T) {
	s := Collect(context.Background(), brokenSurface{pagetest.New("https://x.test")})
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "https://x.test", s.URL)
}
