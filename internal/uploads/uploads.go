// Package uploads белый список каталогов, из которых агенту разрешено загружать файлы.
package uploads

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxCandidates сколько файлов показывать планировщику.
const DefaultMaxCandidates = 30

var extensions = map[string]bool{".pdf": true, ".doc": true, ".docx": true}

// Whitelist каталоги из анкеты плюс каталог вариантов резюме проекта.
type Whitelist struct {
	dirs []string
}

// New variantsDir создаётся при необходимости. Пустые и повторные каталоги отбрасываются.
func New(allowed []string, variantsDir string) *Whitelist {
	dirs := append([]string(nil), allowed...)
	if variantsDir != "" {
		_ = os.MkdirAll(variantsDir, 0o755)
		if abs, err := filepath.Abs(variantsDir); err == nil {
			variantsDir = abs
		}
		dirs = append(dirs, variantsDir)
	}

	seen := make(map[string]bool, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return &Whitelist{dirs: out}
}

func (w *Whitelist) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Allowed путь после раскрытия ~ и симлинков лежит внутри одного из каталогов.
func (w *Whitelist) Allowed(path string) bool {
	if path == "" {
		return false
	}
	candidate, err := resolve(path)
	if err != nil {
		return false
	}
	for _, d := range w.dirs {
		root, err := resolve(d)
		if err != nil {
			continue
		}
		if candidate == root {
			return true
		}
		rel, err := filepath.Rel(root, candidate)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Candidates pdf/doc/docx файлы из белого списка, новые первыми.
func (w *Whitelist) Candidates(limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}

	type file struct {
		path string
		mod  time.Time
	}
	seen := make(map[string]bool)
	var files []file

	for _, d := range w.dirs {
		root, err := resolve(d)
		if err != nil {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if entry.IsDir() || !extensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			if seen[path] || !w.Allowed(path) {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return nil
			}
			seen[path] = true
			files = append(files, file{path: path, mod: info.ModTime()})
			return nil
		})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	if len(files) > limit {
		files = files[:limit]
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out
}

// Resolve разрешённые файлы для запроса планировщика. Предпочтительное резюме задачи идёт первым,
// затем совпадение с запрошенным путём или именем.
func (w *Whitelist) Resolve(requested, preferred string) []string {
	candidates := w.Candidates(DefaultMaxCandidates)
	if preferred != "" && w.Allowed(preferred) {
		if p, err := resolve(preferred); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				candidates = promote(candidates, p)
			}
		}
	}
	if requested != "" {
		return Rank(requested, candidates)
	}
	return candidates
}

// Rank ставит первым кандидата, совпавшего с запросом: по полному пути, по имени файла,
// затем по вхождению в имя. Без совпадений порядок не меняется.
func Rank(requested string, candidates []string) []string {
	out := append([]string(nil), candidates...)
	req := strings.TrimSpace(requested)
	if len(out) == 0 || req == "" {
		return out
	}

	if resolved, err := resolve(req); err == nil {
		for _, c := range out {
			if rc, err := resolve(c); err == nil && rc == resolved {
				return promote(out, c)
			}
		}
	}

	name := strings.ToLower(filepath.Base(req))
	for _, c := range out {
		if strings.ToLower(filepath.Base(c)) == name {
			return promote(out, c)
		}
	}
	for _, c := range out {
		if strings.Contains(strings.ToLower(filepath.Base(c)), name) {
			return promote(out, c)
		}
	}
	return out
}

func promote(list []string, first string) []string {
	out := []string{first}
	for _, c := range list {
		if c != first {
			out = append(out, c)
		}
	}
	return out
}

func resolve(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}
