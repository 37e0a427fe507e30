package retriever

import (
	"math"
	"strconv"
	"strings"

	"product-recommender/internal/models"
)

// Prices within one percent (or a cent) of each other agree.
const priceTolerance = 0.01

const (
	stockIn  = "in stock"
	stockOut = "out of stock"
)

var (
	outOfStockPhrases = []string{"out of stock", "sold out", "unavailable", "not available", "backorder", "discontinued"}
	inStockPhrases    = []string{"in stock", "available", "ships today", "ready to ship"}
)

// detectConflicts compares each ranked catalog product with its web copy.
// Conflicts follow rank order, price before availability.
func detectConflicts(ranked []models.ProductCandidate, observed map[string]liveObservation) []models.Conflict {
	var conflicts []models.Conflict
	for _, c := range ranked {
		if c.Source != models.SourcePrivate {
			continue
		}
		obs, ok := observed[c.ID]
		if !ok {
			continue
		}

		if catalogPrice, ok := c.Price(); ok && obs.price != nil && pricesDiffer(catalogPrice, *obs.price) {
			conflicts = append(conflicts, models.Conflict{
				ID:      c.ID,
				Field:   models.FieldPrice,
				Private: formatPrice(catalogPrice),
				Live:    formatPrice(*obs.price),
				Link:    obs.link,
			})
		}

		catalogStock := stockStatus(c.StringField(models.FieldAvailability))
		if catalogStock != "" && obs.stock != "" && catalogStock != obs.stock {
			conflicts = append(conflicts, models.Conflict{
				ID:      c.ID,
				Field:   models.FieldAvailability,
				Private: catalogStock,
				Live:    obs.stock,
				Link:    obs.link,
			})
		}
	}
	return conflicts
}

func pricesDiffer(catalog, live float64) bool {
	return math.Abs(catalog-live) > math.Max(0.01, catalog*priceTolerance)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// stockStatus reads an availability claim from free text. Empty means the
// text says nothing either way.
func stockStatus(text string) string {
	lower := strings.ToLower(text)
	for _, p := range outOfStockPhrases {
		if strings.Contains(lower, p) {
			return stockOut
		}
	}
	for _, p := range inStockPhrases {
		if strings.Contains(lower, p) {
			return stockIn
		}
	}
	return ""
}
