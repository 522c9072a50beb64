package handlers

import (
	"net/http"

	"github.com/aitector/aitector/config"
	"github.com/labstack/echo/v4"
)

type PricingTier struct {
	Name        string
	Price       string
	Period      string
	Description string
	Features    []string
	CTA         string
	Highlighted bool
}

var pricingTiers = []PricingTier{
	{
		Name:        "Free",
		Price:       "$0",
		Period:      "forever",
		Description: "Perfect for testing and small projects",
		Features:    []string{"100 API requests per day", "All jailbreak detection", "Complete analytics", "API documentation access"},
		CTA:         "Get Started",
	},
	{
		Name:        "Pro",
		Price:       "$10",
		Period:      "per month",
		Description: "For growing teams and production apps",
		Features:    []string{"10,000 API requests per day", "Rewriting support", "Priority support", "Usage analytics dashboard", "Custom rate limits"},
		CTA:         "Start Free Trial",
		Highlighted: true,
	},
	{
		Name:        "Enterprise",
		Price:       "Custom",
		Period:      "contact us",
		Description: "For large-scale deployments",
		Features: []string{
			"Unlimited API requests",
			"Dedicated infrastructure",
			"Custom ML model training",
			"24/7 premium support",
			"Advanced analytics & reporting",
			"Custom integrations",
			"SOC 2 compliance",
			"Service Level Agreement (SLA)",
		},
		CTA: "Contact Sales",
	},
}

// PageData is what every template sees. Only the public anon key is exposed.
type PageData struct {
	Page            string
	Title           string
	APIPrefix       string
	SupabaseURL     string
	SupabaseAnonKey string
	DetectorEnabled bool
	Tiers           []PricingTier
}

var pageTitles = map[string]string{
	"index":      "Jailbreak Detection API",
	"docs":       "Docs",
	"pricing":    "Pricing",
	"auth":       "Sign in",
	"dashboard":  "Dashboard",
	"playground": "Playground",
}

type Pages struct {
	Config *config.Config
}

func NewPages(cfg *config.Config) *Pages {
	return &Pages{Config: cfg}
}

// Page returns a handler rendering the named template.
func (p *Pages) Page(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		data := PageData{
			Page:            name,
			Title:           pageTitles[name],
			APIPrefix:       p.Config.Prefix,
			SupabaseURL:     p.Config.SupabaseURL,
			SupabaseAnonKey: p.Config.SupabaseAnonKey,
			DetectorEnabled: p.Config.DetectorURL != "",
		}
		if name == "pricing" {
			data.Tiers = pricingTiers
		}
		return c.Render(http.StatusOK, name, data)
	}
}
