package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models dateai.yml: curated area knowledge plus plan tuning.
type Config struct {
	Service struct {
		Name        string `yaml:"name"`
		DefaultArea string `yaml:"default_area"`
	} `yaml:"service"`
	Areas          map[string]Area          `yaml:"areas"`
	Budgets        map[string]SlotPrices    `yaml:"budgets"`
	TotalCosts     map[string]string        `yaml:"total_costs"`
	MovementStyles map[string]MovementStyle `yaml:"movement_styles"`
	TimeTables     map[string]TimeTable     `yaml:"time_tables"`
	Search         struct {
		RadiusMeters int `yaml:"radius_meters"`
		MaxResults   int `yaml:"max_results"`
	} `yaml:"search"`
}

// Area is a curated date area with its center and nearest station.
type Area struct {
	Label   string   `yaml:"label"`
	Lat     float64  `yaml:"lat"`
	Lng     float64  `yaml:"lng"`
	Station Station  `yaml:"station"`
	Aliases []string `yaml:"aliases"`
}

// Station is the meeting-point station for an area.
type Station struct {
	Name string `yaml:"name"`
	Exit string `yaml:"exit"`
}

// SlotPrices is the per-slot price guidance for one budget tier, in yen ranges.
type SlotPrices struct {
	Lunch    string `yaml:"lunch"`
	Activity string `yaml:"activity"`
	Cafe     string `yaml:"cafe"`
	Dinner   string `yaml:"dinner"`
}

// ForSlot returns the price range for a slot kind name, empty if unguided.
func (p SlotPrices) ForSlot(kind string) string {
	switch kind {
	case "lunch":
		return p.Lunch
	case "activity", "walk":
		return p.Activity
	case "cafe":
		return p.Cafe
	case "dinner":
		return p.Dinner
	}
	return ""
}

// MovementStyle bounds transit per the user's chosen pace.
type MovementStyle struct {
	Label         string `yaml:"label"`
	Description   string `yaml:"description"`
	Focus         string `yaml:"focus"`
	MaxLegMinutes int    `yaml:"max_leg_minutes"`
	MaxAreas      int    `yaml:"max_areas"`
}

// TimeTable gives the nominal HH:MM start for each slot kind in a time
// context, plus the context's overall start.
type TimeTable struct {
	Start    string `yaml:"start"`
	Lunch    string `yaml:"lunch"`
	Activity string `yaml:"activity"`
	Cafe     string `yaml:"cafe"`
	Dinner   string `yaml:"dinner"`
}

// Load reads and validates config from workspace, falling back to the
// embedded default when no file exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Areas) == 0 {
		return fmt.Errorf("config.areas is required")
	}
	if c.Service.DefaultArea == "" {
		return fmt.Errorf("config.service.default_area is required")
	}
	if _, ok := c.Areas[c.Service.DefaultArea]; !ok {
		return fmt.Errorf("config.service.default_area %q is not a configured area", c.Service.DefaultArea)
	}
	for key, a := range c.Areas {
		if key == "" {
			return fmt.Errorf("config.areas contains an empty key")
		}
		if a.Lat == 0 && a.Lng == 0 {
			return fmt.Errorf("area %s has no center coordinates", key)
		}
	}
	if _, ok := c.Budgets["medium"]; !ok {
		return fmt.Errorf("config.budgets must include medium")
	}
	for tier, prices := range c.Budgets {
		if prices.Lunch == "" || prices.Dinner == "" {
			return fmt.Errorf("budget tier %s is missing lunch or dinner price guidance", tier)
		}
	}
	for _, name := range []string{"lunch", "dinner", "fullday"} {
		tt, ok := c.TimeTables[name]
		if !ok {
			return fmt.Errorf("config.time_tables must include %s", name)
		}
		if tt.Start == "" {
			return fmt.Errorf("time table %s has no start", name)
		}
	}
	for key, ms := range c.MovementStyles {
		if ms.MaxLegMinutes <= 0 {
			return fmt.Errorf("movement style %s has non-positive max_leg_minutes", key)
		}
	}
	return nil
}

// ResolveArea maps free-form area input (key, label, or alias, any case) to
// the configured area. The second return is false when nothing matches.
func (c *Config) ResolveArea(name string) (string, Area, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", Area{}, false
	}
	if a, ok := c.Areas[needle]; ok {
		return needle, a, true
	}
	for key, a := range c.Areas {
		if a.Label == name {
			return key, a, true
		}
		for _, alias := range a.Aliases {
			if alias == name || strings.ToLower(alias) == needle {
				return key, a, true
			}
		}
	}
	return "", Area{}, false
}

// StationFor returns the meeting station for an area label. Inputs already
// naming a station are used as-is; unknown areas get "<label>駅".
func (c *Config) StationFor(areaKey, label string) Station {
	if strings.Contains(label, "駅") {
		return Station{Name: label, Exit: "改札"}
	}
	if a, ok := c.Areas[areaKey]; ok && a.Station.Name != "" {
		return a.Station
	}
	if label == "" {
		label = areaKey
	}
	return Station{Name: label + "駅", Exit: "改札"}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dateai.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the embedded default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("embedded default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `service:
  name: dateai
  default_area: shibuya

areas:
  shibuya:
    label: 渋谷
    lat: 35.6595
    lng: 139.7004
    station: { name: 渋谷駅, exit: ハチ公口 }
    aliases: [渋谷]
  shinjuku:
    label: 新宿
    lat: 35.6938
    lng: 139.7034
    station: { name: 新宿駅, exit: 東口 }
    aliases: [新宿]
  ginza:
    label: 銀座
    lat: 35.6715
    lng: 139.7656
    station: { name: 銀座駅, exit: A1出口 }
    aliases: [銀座]
  harajuku:
    label: 原宿
    lat: 35.6702
    lng: 139.7027
    station: { name: 原宿駅, exit: 竹下口 }
    aliases: [原宿]
  omotesando:
    label: 表参道
    lat: 35.6657
    lng: 139.7125
    aliases: [表参道]
  ebisu:
    label: 恵比寿
    lat: 35.6467
    lng: 139.7100
    aliases: [恵比寿]
  daikanyama:
    label: 代官山
    lat: 35.6502
    lng: 139.7048
    aliases: [代官山]
  nakameguro:
    label: 中目黒
    lat: 35.6417
    lng: 139.6979
    aliases: [中目黒]
  roppongi:
    label: 六本木
    lat: 35.6627
    lng: 139.7291
    aliases: [六本木]
  marunouchi:
    label: 丸の内
    lat: 35.6812
    lng: 139.7671
    aliases: [丸の内]
  tokyo:
    label: 東京
    lat: 35.6812
    lng: 139.7671
    aliases: [東京, 東京都]
  shinagawa:
    label: 品川
    lat: 35.6284
    lng: 139.7387
    aliases: [品川]
  ikebukuro:
    label: 池袋
    lat: 35.7295
    lng: 139.7109
    station: { name: 池袋駅, exit: 東口 }
    aliases: [池袋]
  ueno:
    label: 上野
    lat: 35.7141
    lng: 139.7774
    station: { name: 上野駅, exit: 公園口 }
    aliases: [上野]
  asakusa:
    label: 浅草
    lat: 35.7148
    lng: 139.7967
    station: { name: 浅草駅, exit: 1番出口 }
    aliases: [浅草]
  akihabara:
    label: 秋葉原
    lat: 35.6984
    lng: 139.7731
    aliases: [秋葉原]
  odaiba:
    label: お台場
    lat: 35.6272
    lng: 139.7744
    station: { name: お台場海浜公園駅, exit: 改札 }
    aliases: [お台場]
  kichijoji:
    label: 吉祥寺
    lat: 35.7033
    lng: 139.5797
    aliases: [吉祥寺]
  shimokitazawa:
    label: 下北沢
    lat: 35.6613
    lng: 139.6681
    aliases: [下北沢]
  jiyugaoka:
    label: 自由が丘
    lat: 35.6079
    lng: 139.6681
    aliases: [自由が丘]
  yokohama:
    label: 横浜
    lat: 35.4437
    lng: 139.6380
    aliases: [横浜]

budgets:
  low:
    lunch: 1000-1500
    activity: 1000-1500
    cafe: 600-1000
    dinner: 1500-2000
  medium:
    lunch: 1500-2500
    activity: 2000-3000
    cafe: 1000-1500
    dinner: 3000-5000
  high:
    lunch: 2500-4000
    activity: 3000-5000
    cafe: 1500-2500
    dinner: 5000-10000

total_costs:
  low: 3000-5000円
  medium: 7000-10000円
  high: 15000-25000円

movement_styles:
  balanced:
    label: バランス
    description: 移動と滞在のバランスを取る標準プラン
    focus: 移動時間は25分程度まで、主要エリア2つ以内で構成
    max_leg_minutes: 25
    max_areas: 2
  single_area:
    label: ひとつの街でゆっくり
    description: 徒歩中心・同一エリア内で移動少なめ
    focus: 半径1km/徒歩10〜15分以内を目安に、滞在時間を長めに確保
    max_leg_minutes: 15
    max_areas: 1
  nearby_areas:
    label: 近くのエリアを少し回る
    description: 徒歩＋短距離移動で2エリア程度
    focus: 隣接エリアまで、移動20〜30分以内を優先
    max_leg_minutes: 30
    max_areas: 2
  multiple_areas:
    label: いくつかの街を巡りたい
    description: 電車移動を含めて複数エリアを巡る
    focus: 最大3エリア・1区間30〜45分を上限にルートを最適化
    max_leg_minutes: 45
    max_areas: 3
  day_trip:
    label: 遠出したい（日帰り）
    description: 片道1〜1.5時間の遠出も許容し、現地滞在を重視
    focus: 長距離移動を含めるが、現地では移動30分以内で目玉スポットを優先
    max_leg_minutes: 90
    max_areas: 3

time_tables:
  lunch:
    start: "12:00"
    lunch: "12:00"
    activity: "14:00"
    cafe: "16:30"
    dinner: "18:00"
  dinner:
    start: "17:00"
    lunch: "17:00"
    activity: "17:00"
    cafe: "18:30"
    dinner: "20:00"
  fullday:
    start: "09:00"
    lunch: "11:30"
    activity: "13:30"
    cafe: "15:30"
    dinner: "17:30"

search:
  radius_meters: 1500
  max_results: 5
`
