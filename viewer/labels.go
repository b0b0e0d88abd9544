package viewer

import (
	"enginewatch/sensor"
	"enginewatch/strutil"
)

// Locale holds the display strings for one language.
type Locale struct {
	Name   string
	Labels map[string]string // keyed by sensor id or type

	Alarm     string
	Attention string
	Normal    string

	Connected    string
	Disconnected string

	ValueCaption  string
	RangeCaption  string
	RiskCaption   string
	StatusCaption string

	KPICritical string
	KPIWarning  string
	KPINormal   string
	KPITotal    string
}

// LocaleRU is the default catalogue.
var LocaleRU = Locale{
	Name: "ru",
	Labels: map[string]string{
		"rpm":                 "Обороты (об/мин)",
		"engine_temp_coolant": "Температура ОЖ (°C)",
		"oil_temp":            "Температура масла (°C)",
		"oil_pressure":        "Давление масла (бар)",
		"fuel_pressure":       "Давление топлива (бар)",
		"fuel_level":          "Уровень топлива (%)",
		"fuel_consumption":    "Расход топлива (л/ч)",
		"voltage":             "Напряжение (В)",
		"current":             "Ток (А)",
		"ecu_errors":          "Ошибки ECU",
		"fuel_leak":           "Утечка топлива",
		"coolant_pressure":    "Давление ОЖ (бар)",
		"overheat":            "Перегрев",
		"vibration":           "Вибрация (м/с²)",
		"emergency_stop":      "Аварийная остановка",
	},
	Alarm:         "АВАРИЯ",
	Attention:     "ВНИМАНИЕ",
	Normal:        "НОРМА",
	Connected:     "Подключено",
	Disconnected:  "Отключено",
	ValueCaption:  "Значение",
	RangeCaption:  "Диапазон",
	RiskCaption:   "Вероятность",
	StatusCaption: "Статус",
	KPICritical:   "Аварии",
	KPIWarning:    "Внимание",
	KPINormal:     "Норма",
	KPITotal:      "Датчики",
}

// LocaleEN mirrors LocaleRU in English.
var LocaleEN = Locale{
	Name: "en",
	Labels: map[string]string{
		"rpm":                 "Engine speed (rpm)",
		"engine_temp_coolant": "Coolant temperature (°C)",
		"oil_temp":            "Oil temperature (°C)",
		"oil_pressure":        "Oil pressure (bar)",
		"fuel_pressure":       "Fuel pressure (bar)",
		"fuel_level":          "Fuel level (%)",
		"fuel_consumption":    "Fuel consumption (l/h)",
		"voltage":             "Voltage (V)",
		"current":             "Current (A)",
		"ecu_errors":          "ECU errors",
		"fuel_leak":           "Fuel leak",
		"coolant_pressure":    "Coolant pressure (bar)",
		"overheat":            "Overheat",
		"vibration":           "Vibration (m/s²)",
		"emergency_stop":      "Emergency stop",
	},
	Alarm:         "ALARM",
	Attention:     "ATTENTION",
	Normal:        "NORMAL",
	Connected:     "Connected",
	Disconnected:  "Disconnected",
	ValueCaption:  "Value",
	RangeCaption:  "Range",
	RiskCaption:   "Probability",
	StatusCaption: "Status",
	KPICritical:   "Critical",
	KPIWarning:    "Warning",
	KPINormal:     "Normal",
	KPITotal:      "Sensors",
}

// LookupLocale returns the catalogue for name ("ru", "en"); unknown names
// fall back to LocaleRU with ok=false.
func LookupLocale(name string) (Locale, bool) {
	switch strutil.NormalizeLower(name) {
	case "", "ru":
		return LocaleRU, true
	case "en":
		return LocaleEN, true
	default:
		return LocaleRU, false
	}
}

// Label resolves the display name: id label, type label, raw id, raw type.
func (l Locale) Label(r sensor.Reading) string {
	if label, ok := l.Labels[r.ID]; ok && r.ID != "" {
		return label
	}
	if label, ok := l.Labels[r.Type]; ok && r.Type != "" {
		return label
	}
	if r.ID != "" {
		return r.ID
	}
	return r.Type
}

// StatusText maps an effective severity to the pill text.
func (l Locale) StatusText(sev sensor.Severity) string {
	switch sev {
	case sensor.SeverityCritical:
		return l.Alarm
	case sensor.SeverityWarning:
		return l.Attention
	default:
		return l.Normal
	}
}

// ConnectionText renders the connection side channel.
func (l Locale) ConnectionText(connected bool) string {
	if connected {
		return l.Connected
	}
	return l.Disconnected
}
