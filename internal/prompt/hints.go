package prompt

import (
	"strings"
)

const (
	letterMarker  = "сопроводитель"
	askWindow     = 300
	askSnippetLen = 240
)

var askKeywords = []string{"указать", "напишите", "сообщить", "ответить", "опишите"}

var skillStems = []string{
	"стрессоустойчив", "обучаем", "инициатив", "ответствен", "внимательн", "коммуникаб",
	"клиентоориент", "самоорганиз", "исполнительн", "аналитич", "проактив", "командн",
}

// Hints are requests and qualities the vacancy explicitly asks the letter to
// address.
type Hints struct {
	Asks   []string
	Skills []string
}

// ExtractHints scans a vacancy description for an explicit cover-letter
// request and for soft-skill keywords.
func ExtractHints(description string) Hints {
	desc := strings.ToLower(description)
	var hints Hints

	if idx := strings.Index(desc, letterMarker); idx != -1 {
		tail, _, _ := strings.Cut(truncateRunes(desc[idx:], askWindow), "\n")
		for _, keyword := range askKeywords {
			if strings.Contains(tail, keyword) {
				hints.Asks = append(hints.Asks, truncateRunes(tail, askSnippetLen))
				break
			}
		}
	}

	for _, stem := range skillStems {
		if strings.Contains(desc, stem) {
			hints.Skills = append(hints.Skills, stem)
		}
	}
	return hints
}
