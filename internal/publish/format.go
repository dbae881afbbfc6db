package publish

import (
	"html"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"newsbot/internal/news"
)

// Telegram limits, counted in runes of the submitted markup.
const (
	CaptionLimit = 1024
	TextLimit    = 4096
)

const (
	LayoutDetailed = "detailed"
	LayoutCompact  = "compact"

	CalendarGregorian = "gregorian"
	CalendarJalali    = "jalali"

	defaultMaxHashtags = 5
	rlm                = "\u200f"
)

// Translated carries the translated fields of an article.
type Translated struct {
	Title   string
	Snippet string
}

type labels struct {
	Source, Date, Details, OriginalLink, ReadMore, FullArticle string
}

var labelSets = map[string]labels{
	"en": {
		Source:       "Source",
		Date:         "Date",
		Details:      "More details",
		OriginalLink: "Original link",
		ReadMore:     "Read the full article",
		FullArticle:  "Full article",
	},
	"fa": {
		Source:       "منبع",
		Date:         "تاریخ",
		Details:      "جزئیات بیشتر",
		OriginalLink: "لینک اصلی",
		ReadMore:     "مشاهده متن کامل مقاله",
		FullArticle:  "متن کامل مقاله",
	},
}

var rtlLanguages = map[string]bool{"fa": true, "ar": true, "he": true, "ur": true}

// Renderer builds the HTML message for one article.
type Renderer struct {
	Layout      string
	Language    string
	Footer      string // trusted HTML appended verbatim
	Calendar    string
	Location    *time.Location
	MaxHashtags int
}

var stripper = bluemonday.StrictPolicy()

// plain strips any markup the news API leaked into a field and returns
// unescaped text ready for html.EscapeString.
func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripper.Sanitize(s)))
}

// Render returns the message for a, shortened to limit runes. The snippet is
// shortened first so that the link and footer survive; TruncateHTML is the
// last resort.
func (r Renderer) Render(a news.Article, tr Translated, now time.Time, limit int) string {
	snippet := []rune(plain(tr.Snippet))
	msg := r.render(a, tr, string(snippet), now)
	for utf8.RuneCountInString(msg) > limit && len(snippet) > 0 {
		over := utf8.RuneCountInString(msg) - limit
		keep := len(snippet) - over - len(ellipsis)
		if keep < 0 {
			keep = 0
		}
		snippet = []rune(strings.TrimRightFunc(string(snippet[:keep]), unicode.IsSpace))
		msg = r.render(a, tr, string(snippet)+ellipsis, now)
		if keep == 0 {
			msg = r.render(a, tr, "", now)
			break
		}
	}
	return TruncateHTML(msg, limit)
}

func (r Renderer) render(a news.Article, tr Translated, snippet string, now time.Time) string {
	lang := strings.ToLower(strings.TrimSpace(r.Language))
	lb, ok := labelSets[lang]
	if !ok {
		lb = labelSets["en"]
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	date := formatDate(now.In(loc), r.Calendar)

	title := html.EscapeString(plain(tr.Title))
	if title == "" {
		title = html.EscapeString(plain(a.Title))
	}
	body := html.EscapeString(snippet)
	source := html.EscapeString(plain(a.Publisher))
	link := html.EscapeString(strings.TrimSpace(a.Link))
	tags := Hashtags(a.RelatedTopics, r.maxHashtags())

	var b strings.Builder
	switch r.Layout {
	case LayoutCompact:
		b.WriteString("📰 <b>" + title + "</b>\n\n")
		if body != "" {
			b.WriteString("📝 " + body + "\n\n")
		}
		b.WriteString("🌐 <a href=\"" + link + "\"><b>" + lb.FullArticle + "</b></a>\n")
		b.WriteString("<b>✍🏻 " + lb.Source + ":</b> " + source + "\n")
		b.WriteString("<b>🕰 " + lb.Date + ":</b> " + date)
		if tags != "" {
			b.WriteString("\n\n" + tags)
		}
	default:
		if rtlLanguages[lang] {
			b.WriteString(rlm)
		}
		b.WriteString("🎨 <b>" + title + "</b>\n\n")
		if body != "" {
			b.WriteString("● " + body + "\n\n")
		}
		b.WriteString("☑️ <b>" + lb.Details + ":</b>\n")
		b.WriteString("● <b>" + lb.Source + ":</b> " + source + "\n")
		b.WriteString("● <b>" + lb.Date + ":</b> " + date + "\n\n")
		b.WriteString("┌ 🔗 <b>" + lb.OriginalLink + "</b>\n")
		b.WriteString("└ 🌐 <a href=\"" + link + "\">" + lb.ReadMore + "</a>")
		if tags != "" {
			b.WriteString("\n\n" + tags)
		}
	}
	if f := strings.TrimSpace(r.Footer); f != "" {
		b.WriteString("\n" + f)
	}
	return b.String()
}

func (r Renderer) maxHashtags() int {
	if r.MaxHashtags <= 0 {
		return defaultMaxHashtags
	}
	return r.MaxHashtags
}

// Hashtags turns up to max topic names into "#tag" words. Spaces and dashes
// become underscores; anything other than letters, digits and underscores is
// dropped. Topics that clean to nothing are skipped but still count.
func Hashtags(topics []string, max int) string {
	if len(topics) > max {
		topics = topics[:max]
	}
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		var b strings.Builder
		for _, c := range t {
			switch {
			case c == ' ' || c == '-':
				b.WriteRune('_')
			case c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
				b.WriteRune(c)
			}
		}
		if b.Len() > 0 {
			out = append(out, "#"+b.String())
		}
	}
	return strings.Join(out, " ")
}
