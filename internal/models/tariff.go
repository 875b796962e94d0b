package models

import "fmt"

// Tariff is a purchasable subscription plan
type Tariff struct {
	Code         string
	Months       int
	TrafficLimit int64 // GB, 0 = unlimited
	Price        int
	Flow         string
}

// IsUnlimited reports whether the plan has no traffic ceiling
func (t Tariff) IsUnlimited() bool {
	return t.TrafficLimit == 0
}

// Title returns the button caption for the plan
func (t Tariff) Title() string {
	traffic := "unlimited"
	if !t.IsUnlimited() {
		traffic = fmt.Sprintf("%d GB", t.TrafficLimit)
	}
	return fmt.Sprintf("%d mo, %s, %d₽", t.Months, traffic, t.Price)
}

// Addon is a traffic top-up package
type Addon struct {
	Code  string
	GB    int64
	Price int
}

// Title returns the button caption for the package
func (a Addon) Title() string {
	return fmt.Sprintf("+%d GB, %d₽", a.GB, a.Price)
}

// Tariffs lists the plans in display order
var Tariffs = []Tariff{
	{Code: "limited_1", Months: 1, TrafficLimit: 30, Price: 70, Flow: "xtls-rprx-vision"},
	{Code: "limited_3", Months: 3, TrafficLimit: 60, Price: 200, Flow: "xtls-rprx-vision"},
	{Code: "limited_6", Months: 6, TrafficLimit: 90, Price: 450, Flow: "xtls-rprx-vision"},
	{Code: "unlimited_1", Months: 1, TrafficLimit: 0, Price: 90, Flow: "xtls-rprx-vision"},
	{Code: "unlimited_3", Months: 3, TrafficLimit: 0, Price: 250, Flow: "xtls-rprx-vision"},
	{Code: "unlimited_6", Months: 6, TrafficLimit: 0, Price: 500, Flow: "xtls-rprx-vision"},
}

// Addons lists the top-up packages in display order
var Addons = []Addon{
	{Code: "gb10", GB: 10, Price: 40},
	{Code: "gb20", GB: 20, Price: 50},
	{Code: "gb30", GB: 30, Price: 60},
}

// FindTariff looks a plan up by code
func FindTariff(code string) (Tariff, bool) {
	for _, t := range Tariffs {
		if t.Code == code {
			return t, true
		}
	}
	return Tariff{}, false
}

// FindAddon looks a top-up package up by code
func FindAddon(code string) (Addon, bool) {
	for _, a := range Addons {
		if a.Code == code {
			return a, true
		}
	}
	return Addon{}, false
}
