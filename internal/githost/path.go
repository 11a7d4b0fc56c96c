package githost

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Slugify приводит значение к виду [a-z0-9-]. Пустой результат — "general".
func Slugify(value string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(value), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "general"
	}
	return s
}

// SanitizeFileName заменяет пробельные последовательности на "-"
// и убирает разделители путей.
func SanitizeFileName(name string) string {
	name = whitespace.ReplaceAllString(name, "-")
	name = strings.NewReplacer("/", "", `\`, "").Replace(name)
	if name == "" {
		return "file"
	}
	return name
}

// BuildPath строит путь файла в репозитории:
// grade-<slug>/subject-<slug>/<unix millis>-<имя файла>.
func BuildPath(grade, subject, fileName string, now time.Time) string {
	return fmt.Sprintf("grade-%s/subject-%s/%d-%s",
		Slugify(grade), Slugify(subject), now.UnixMilli(), SanitizeFileName(fileName))
}
