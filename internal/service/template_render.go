// internal/service/template_render.go
package service

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyggeo/campaign-service/internal/mailer"
	"github.com/hyggeo/campaign-service/internal/model"
)

// MergeFields is the catalog of placeholders a template may declare.
var MergeFields = []string{
	"first_name",
	"last_name",
	"username",
	"email",
	"member_since",
	"join_date",
	"last_login",
	"sustainability_priority",
	"dream_destination",
	"unsubscribe_url",
}

const testSubjectPrefix = "[TEST] "

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

func isMergeField(name string) bool {
	for _, f := range MergeFields {
		if f == name {
			return true
		}
	}
	return false
}

// MergeValues builds the placeholder values for one recipient.
func MergeValues(u model.User, baseURL string) map[string]string {
	firstName := u.FirstName
	if firstName == "" {
		firstName = u.Username
	}

	lastLogin := ""
	if u.LastLogin != nil {
		lastLogin = u.LastLogin.Format("2006-01-02")
	}

	unsubscribe := ""
	if u.UnsubscribeToken != "" {
		unsubscribe = strings.TrimRight(baseURL, "/") + "/unsubscribe/" + u.UnsubscribeToken + "/"
	}

	return map[string]string{
		"first_name":              firstName,
		"last_name":               u.LastName,
		"username":                u.Username,
		"email":                   u.Email,
		"member_since":            u.DateJoined.Format("January 2006"),
		"join_date":               u.DateJoined.Format("2006-01-02"),
		"last_login":              lastLogin,
		"sustainability_priority": strconv.Itoa(u.SustainabilityPriority),
		"dream_destination":       u.DreamDestination,
		"unsubscribe_url":         unsubscribe,
	}
}

// RenderTemplate substitutes {{field}} placeholders. Unknown placeholders are
// left as written; escapeHTML escapes the substituted values only.
func RenderTemplate(content string, data map[string]string, escapeHTML bool) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := data[name]
		if !ok {
			return match
		}
		if escapeHTML {
			return html.EscapeString(value)
		}
		return value
	})
}

// RenderMessage renders a template for one recipient.
func RenderMessage(t *model.Template, u model.User, mode model.CampaignMode, baseURL string) mailer.Message {
	data := MergeValues(u, baseURL)

	subject := RenderTemplate(t.Subject, data, false)
	if mode == model.ModeTest {
		subject = testSubjectPrefix + subject
	}

	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return mailer.Message{
		To:      u.Email,
		ToName:  name,
		Subject: subject,
		HTML:    RenderTemplate(t.HTMLContent, data, true),
		Text:    RenderTemplate(t.TextContent, data, false),
	}
}

// placeholders lists the distinct placeholder names used in content.
func placeholders(content ...string) []string {
	seen := map[string]bool{}
	var names []string
	for _, c := range content {
		for _, m := range placeholderPattern.FindAllStringSubmatch(c, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}
