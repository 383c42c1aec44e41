// Package prompt turns a vacancy and the user's base letter into the chat
// messages sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/markis/gh-coverletter/internal/client"
)

// System instructs the model how to write the letter.
const System = `Ты карьерный консультант и рекрутер для рынка СНГ.
Твоя цель — подготовить сопроводительное письмо к вакансии hh.ru строго по описанию.
Базовое письмо кандидата используй только как источник фактов.
Если в описании есть явные просьбы/вопросы — ответь на них в начале.
После приветствия всегда фраза: «Меня заинтересовала ваша вакансия».
Финал: «Буду рад возможности обсудить детали и ответить на ваши вопросы. Жду вашей обратной связи!».
Структура 120–180 слов.`

const (
	maxDescriptionRunes = 9000
	maxAsks             = 3
)

// Job is the vacancy a letter is written for.
type Job struct {
	Title       string
	URL         string
	Description string
}

// BuildUser renders the user message. variant differentiates regenerations of
// the same vacancy.
func BuildUser(base string, job Job, variant int) string {
	hints := ExtractHints(job.Description)

	var blocks []string
	if len(hints.Asks) > 0 {
		asks := hints.Asks[:min(len(hints.Asks), maxAsks)]
		blocks = append(blocks, "ЯВНЫЕ ВОПРОСЫ/ПРОСЬБЫ:\n- "+strings.Join(asks, "\n- "))
	}
	if len(hints.Skills) > 0 {
		blocks = append(blocks, "ЗАПРОШЕННЫЕ КАЧЕСТВА: "+strings.Join(hints.Skills, ", "))
	}

	return fmt.Sprintf(`БАЗОВОЕ ПИСЬМО (только факты):
%s

ВАКАНСИЯ: %s
URL: %s

Описание:
%s

%s

ЗАДАЧА: 120–180 слов. Ответь на явные вопросы в начале. Вариант №%d.`,
		base, job.Title, job.URL, truncateRunes(job.Description, maxDescriptionRunes),
		strings.Join(blocks, "\n\n"), variant)
}

// Messages returns the system and user messages for one generation.
func Messages(base string, job Job, variant int) []client.Message {
	return []client.Message{
		{Role: client.RoleSystem, Content: System},
		{Role: client.RoleUser, Content: BuildUser(base, job, variant)},
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
