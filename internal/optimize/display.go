package optimize

import (
	"fmt"

	"cart-sync/internal/model"
)

// Summary is an optimization result rendered for the shopper.
// Amounts are the service's totals printed as is.
type Summary struct {
	TotalSamokat    string     `json:"totalSamokat"`
	TotalLavka      string     `json:"totalLavka"`
	RecommendedShop model.Shop `json:"recommendedShop"`
	Recommendation  string     `json:"recommendation"`
	Lines           []string   `json:"lines"`
}

// Display maps a result to display text. Same result, same text.
// Example: 160/190 SAMOKAT → "Заказать Самокат: 160₽", "Заказать Лавка: 190₽", "Рекомендация: Самокат!"
func Display(result model.OptimizationResult) Summary {
	samokat := model.FormatRub(result.TotalSamokat)
	lavka := model.FormatRub(result.TotalLavka)
	shop := result.RecommendedShop.DisplayName()

	return Summary{
		TotalSamokat:    samokat,
		TotalLavka:      lavka,
		RecommendedShop: result.RecommendedShop,
		Recommendation:  shop,
		Lines: []string{
			fmt.Sprintf("Заказать %s: %s", model.ShopSamokat.DisplayName(), samokat),
			fmt.Sprintf("Заказать %s: %s", model.ShopLavka.DisplayName(), lavka),
			fmt.Sprintf("Рекомендация: %s!", shop),
		},
	}
}
