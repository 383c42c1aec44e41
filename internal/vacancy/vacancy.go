// Package vacancy extracts the job posting from an hh.ru vacancy page.
package vacancy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/markis/gh-coverletter/internal/prompt"
)

const (
	titleSelector       = `h1[data-qa="vacancy-title"]`
	descriptionSelector = `div[data-qa="vacancy-description"]`
	untitled            = "Без названия"
	userAgent           = "gh-coverletter/1.0"
)

// ErrNotVacancy is returned for pages without a vacancy title and description.
var ErrNotVacancy = errors.New("vacancy description not found on page")

// Parse reads a vacancy page. pageURL is recorded on the job as-is.
func Parse(r io.Reader, pageURL string) (prompt.Job, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return prompt.Job{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := doc.Find(titleSelector).First()
	description := doc.Find(descriptionSelector).First()
	if title.Length() == 0 || description.Length() == 0 {
		return prompt.Job{}, ErrNotVacancy
	}

	job := prompt.Job{
		Title:       strings.TrimSpace(title.Text()),
		URL:         pageURL,
		Description: strings.TrimSpace(description.Text()),
	}
	if job.Title == "" {
		job.Title = untitled
	}
	return job, nil
}

// Fetch downloads and parses a vacancy page.
func Fetch(ctx context.Context, pageURL string) (prompt.Job, error) {
	client := &http.Client{
		Timeout: 15 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return prompt.Job{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return prompt.Job{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return prompt.Job{}, fmt.Errorf("received status code %d", resp.StatusCode)
	}

	return Parse(resp.Body, pageURL)
}

// FromFile parses a saved vacancy page.
func FromFile(path string) (prompt.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return prompt.Job{}, err
	}
	defer f.Close()

	return Parse(f, "file://"+path)
}
