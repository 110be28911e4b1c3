// Package snapshot превращает элементы страницы в упорядоченный список со ссылками e1..eN
// и считает отпечаток состояния страницы.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"autojob/internal/page"
)

// RoleOrder порядок ролей в снимке.
var RoleOrder = []string{"button", "link", "checkbox", "radio", "combobox", "textbox", "option", "file_input"}

const (
	MaxPerRole       = 30
	MaxTotal         = 160
	FingerprintItems = 40
)

type Snapshot struct {
	URL   string
	Items []page.Element
	byRef map[string]page.Element
}

// Lookup элемент по ссылке.
func (s Snapshot) Lookup(ref string) (page.Element, bool) {
	e, ok := s.byRef[ref]
	return e, ok
}

func (s Snapshot) Len() int { return len(s.Items) }

// FileInputs количество file input в снимке.
func (s Snapshot) FileInputs() int {
	n := 0
	for _, e := range s.Items {
		if e.Role == "file_input" {
			n++
		}
	}
	return n
}

func roleIndex(role string) int {
	for i, r := range RoleOrder {
		if r == role {
			return i
		}
	}
	return -1
}

// Build ограничивает число элементов, оставляет элементы форм (если они есть),
// ставит вперёд незаполненные обязательные и раздаёт ссылки.
func Build(pageURL string, raw []page.Element) Snapshot {
	perRole := map[string]int{}
	items := make([]page.Element, 0, len(raw))
	for _, e := range raw {
		if roleIndex(e.Role) < 0 || strings.TrimSpace(e.Name) == "" {
			continue
		}
		if perRole[e.Role] >= MaxPerRole {
			continue
		}
		perRole[e.Role]++
		e.Name = strings.TrimSpace(e.Name)
		items = append(items, e)
	}

	inForm := items[:0:0]
	for _, e := range items {
		if e.InForm {
			inForm = append(inForm, e)
		}
	}
	if len(inForm) > 0 {
		items = inForm
	}

	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := tier(items[i]), tier(items[j])
		if ti != tj {
			return ti < tj
		}
		return roleIndex(items[i].Role) < roleIndex(items[j].Role)
	})

	if len(items) > MaxTotal {
		items = items[:MaxTotal]
	}

	s := Snapshot{URL: pageURL, Items: items, byRef: make(map[string]page.Element, len(items))}
	for i := range s.Items {
		s.Items[i].Ref = fmt.Sprintf("e%d", i+1)
		s.byRef[s.Items[i].Ref] = s.Items[i]
	}
	return s
}

func tier(e page.Element) int {
	switch {
	case e.Required && !e.Filled():
		return 0
	case e.Required:
		return 1
	default:
		return 2
	}
}

// Collect читает элементы со страницы. Ошибка браузера даёт пустой снимок.
func Collect(ctx context.Context, s page.Surface) Snapshot {
	raw, err := s.Elements(ctx)
	if err != nil {
		raw = nil
	}
	return Build(s.URL(), raw)
}

// Render текстовое представление снимка для промпта.
func Render(s Snapshot) string {
	if len(s.Items) == 0 {
		return "(no interactive elements)"
	}
	var b strings.Builder
	for _, e := range s.Items {
		fmt.Fprintf(&b, "%s | role=%s", e.Ref, e.Role)
		if e.InputType != "" {
			fmt.Fprintf(&b, ", type=%s", e.InputType)
		}
		if e.Required {
			b.WriteString(", required")
		}
		if e.Checked != nil {
			fmt.Fprintf(&b, ", checked=%t", *e.Checked)
		}
		fmt.Fprintf(&b, " | name=%s", clip(e.Name, 120))
		if e.ValueHint != "" {
			fmt.Fprintf(&b, " | value=%s", clip(e.ValueHint, 60))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

type fpItem struct {
	R   string `json:"r"`
	N   string `json:"n"`
	T   string `json:"t,omitempty"`
	Req bool   `json:"req"`
	Chk *bool  `json:"chk,omitempty"`
	VH  string `json:"vh,omitempty"`
}

type fpDoc struct {
	URL   string   `json:"u"`
	Items []fpItem `json:"i"`
}

// Fingerprint SHA-256 по URL без фрагмента и первым 40 элементам в порядке ссылок.
func Fingerprint(pageURL string, items []page.Element) string {
	doc := fpDoc{URL: stripFragment(pageURL)}
	for i, e := range items {
		if i >= FingerprintItems {
			break
		}
		doc.Items = append(doc.Items, fpItem{
			R:   e.Role,
			N:   clip(e.Name, 60),
			T:   e.InputType,
			Req: e.Required,
			Chk: e.Checked,
			VH:  clip(e.ValueHint, 60),
		})
	}
	data, _ := json.Marshal(doc)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

var (
	numericToken = regexp.MustCompile(`^\d+$`)
	uuidToken    = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	opaqueToken  = regexp.MustCompile(`^[0-9a-z_-]{12,}$`)
	hasDigit     = regexp.MustCompile(`\d`)
)

func idLike(seg string) bool {
	if numericToken.MatchString(seg) || uuidToken.MatchString(seg) {
		return true
	}
	return opaqueToken.MatchString(seg) && hasDigit.MatchString(seg)
}

// StableScope домен и нормализованный путь: без сегментов jobs/job и идентификаторов, не длиннее трёх сегментов.
func StableScope(pageURL string) string {
	u, err := url.Parse(pageURL)
	host := "unknown"
	path := "/"
	if err == nil {
		if u.Host != "" {
			host = strings.ToLower(u.Host)
		}
		if u.Path != "" {
			path = strings.ToLower(u.Path)
		}
	}

	var parts []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "jobs" || seg == "job" || idLike(seg) {
			continue
		}
		parts = append(parts, seg)
		if len(parts) == 3 {
			break
		}
	}
	return host + "/" + strings.Join(parts, "/")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
