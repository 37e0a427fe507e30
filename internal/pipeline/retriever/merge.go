package retriever

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"product-recommender/internal/models"
	"product-recommender/internal/services/livesearch"
	"product-recommender/internal/services/vectorsearch"
)

// liveNamespace scopes the name-based UUIDs that become web-<hash> ids.
var liveNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("product-recommender/live"))

// A catalog title must have at least this many words to match inside a
// longer web title.
const minContainedTitleWords = 2

func privateCandidates(records []vectorsearch.Record) []models.ProductCandidate {
	out := make([]models.ProductCandidate, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		out = append(out, models.ProductCandidate{
			ID:             r.ID,
			Source:         models.SourcePrivate,
			Fields:         r.Fields,
			RelevanceScore: r.Score,
			Link:           r.Link,
		})
	}
	return out
}

// catalogIndex finds the catalog product a web result describes.
type catalogIndex struct {
	ids    map[string]bool
	byLink map[string]string
	titles []catalogTitle
}

type catalogTitle struct {
	id    string
	title string
}

func newCatalogIndex(private []vectorsearch.Record) *catalogIndex {
	idx := &catalogIndex{
		ids:    make(map[string]bool, len(private)),
		byLink: make(map[string]string, len(private)),
	}
	for _, p := range private {
		if p.ID == "" {
			continue
		}
		idx.ids[p.ID] = true
		if p.Link != "" {
			key := canonicalURL(p.Link)
			if _, taken := idx.byLink[key]; !taken {
				idx.byLink[key] = p.ID
			}
		}
		if title := normalizeTitle(models.ToString(p.Fields[models.FieldTitle])); title != "" {
			idx.titles = append(idx.titles, catalogTitle{id: p.ID, title: title})
		}
	}
	return idx
}

// match tries the link first, then a catalog title equal to the web title,
// then the longest catalog title contained in it word for word.
func (idx *catalogIndex) match(r livesearch.Record) (string, bool) {
	if id, ok := idx.byLink[canonicalURL(r.URL)]; ok {
		return id, true
	}

	webTitle := normalizeTitle(r.Title)
	if webTitle == "" {
		return "", false
	}
	padded := " " + webTitle + " "

	best, bestLen := "", 0
	for _, t := range idx.titles {
		if t.title == webTitle {
			return t.id, true
		}
		if len(strings.Fields(t.title)) < minContainedTitleWords {
			continue
		}
		if strings.Contains(padded, " "+t.title+" ") && len(t.title) > bestLen {
			best, bestLen = t.id, len(t.title)
		}
	}
	return best, best != ""
}

// liveObservation is what a web copy of a catalog product reported, kept
// regardless of the fields the plan projects.
type liveObservation struct {
	price *float64
	stock string
	link  string
}

// liveCandidates turns web results into candidates. Only fields the plan
// requested are kept: title, the snippet as description and a parsed price.
// Web copies of catalog products are also returned as observations keyed by
// the catalog id.
func liveCandidates(records []livesearch.Record, private []vectorsearch.Record, fields []string) ([]models.ProductCandidate, map[string]liveObservation) {
	idx := newCatalogIndex(private)

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	out := make([]models.ProductCandidate, 0, len(records))
	observed := map[string]liveObservation{}
	for _, r := range records {
		source := map[string]interface{}{}
		if r.Title != "" {
			source[models.FieldTitle] = r.Title
		}
		if r.Snippet != "" {
			source[models.FieldDescription] = r.Snippet
		}
		price := r.Price
		if price == nil {
			if p, ok := models.PriceFromText(r.Title + " " + r.Snippet); ok {
				price = &p
			}
		}
		if price != nil {
			source[models.FieldPrice] = *price
		}

		projected := make(map[string]interface{}, len(source))
		for k, v := range source {
			if wanted[k] {
				projected[k] = v
			}
		}

		id := liveID(r, idx)
		if idx.ids[id] {
			if _, seen := observed[id]; !seen {
				observed[id] = liveObservation{price: price, stock: stockStatus(r.Title + " " + r.Snippet), link: r.URL}
			}
		}

		out = append(out, models.ProductCandidate{
			ID:             id,
			Source:         models.SourceLive,
			Fields:         projected,
			RelevanceScore: r.Score,
			Link:           r.URL,
		})
	}
	return out, observed
}

// liveID prefers an explicit id, then the id of the catalog product the
// result describes, then a stable hash of the URL.
func liveID(r livesearch.Record, idx *catalogIndex) string {
	if r.ID != "" {
		return r.ID
	}
	if idx != nil {
		if id, ok := idx.match(r); ok {
			return id
		}
	}
	hash := strings.ReplaceAll(uuid.NewSHA1(liveNamespace, []byte(canonicalURL(r.URL))).String(), "-", "")
	return "web-" + hash[:12]
}

// canonicalURL lower-cases scheme and host, drops the fragment and any
// trailing slash so trivially different links compare equal.
func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// normalizeTitle lower-cases and keeps letters and digits as single-spaced words.
func normalizeTitle(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// merge deduplicates by id. The first record seen for an id wins, so private
// candidates (passed first) keep their fields; a later live copy only fills
// a missing link.
func merge(private, live []models.ProductCandidate) []models.ProductCandidate {
	index := make(map[string]int, len(private)+len(live))
	merged := make([]models.ProductCandidate, 0, len(private)+len(live))

	for _, group := range [][]models.ProductCandidate{private, live} {
		for _, c := range group {
			if i, seen := index[c.ID]; seen {
				if merged[i].Link == "" && c.Link != "" {
					merged[i].Link = c.Link
				}
				continue
			}
			index[c.ID] = len(merged)
			merged = append(merged, c)
		}
	}
	return merged
}
