// Package region maps free-text governorate names to canonical region codes.
//
// The alias table is evaluated in authored order and the first entry owning an
// alias contained in the input wins. Aliases overlap on purpose in a few
// places; see Collisions.
package region

import (
	"strings"
)

type Code string

const (
	Cairo      Code = "CAIRO"
	Giza       Code = "GIZA"
	Alexandria Code = "ALEXANDRIA"
	Qalyubia   Code = "QALYUBIA"
	Sharqia    Code = "SHARQIA"
	Dakahlia   Code = "DAKAHLIA"
	Gharbia    Code = "GHARBIA"
	Monufia    Code = "MONUFIA"
	Beheira    Code = "BEHEIRA"
	Ismailia   Code = "ISMAILIA"
	Suez       Code = "SUEZ"
	PortSaid   Code = "PORT_SAID"
	Fayoum     Code = "FAYOUM"
	BeniSuef   Code = "BENI_SUEF"
	Minya      Code = "MINYA"
	Asyut      Code = "ASYUT"
	Sohag      Code = "SOHAG"
	Qena       Code = "QENA"
	Luxor      Code = "LUXOR"
	Aswan      Code = "ASWAN"
	RedSea     Code = "RED_SEA"
	SouthSinai Code = "SOUTH_SINAI"
)

type Entry struct {
	Code    Code
	Label   string
	Aliases []string
}

// table order is part of the contract; do not sort.
var table = []Entry{
	{Cairo, "Cairo", []string{"cairo", "القاهرة", "qahira", "new cairo", "nasr city", "heliopolis", "maadi", "shubra"}},
	{Giza, "Giza", []string{"giza", "الجيزة", "جيزة", "6th of october", "october", "sheikh zayed", "haram"}},
	{Alexandria, "Alexandria", []string{"alexandria", "alex", "الإسكندرية", "الاسكندرية", "اسكندرية"}},
	{Qalyubia, "Qalyubia", []string{"qalyubia", "qaliubiya", "kalyubia", "القليوبية", "banha", "benha", "shubra el kheima", "obour"}},
	{Sharqia, "Sharqia", []string{"sharqia", "sharkia", "الشرقية", "zagazig", "10th of ramadan"}},
	{Dakahlia, "Dakahlia", []string{"dakahlia", "dakahleya", "الدقهلية", "mansoura"}},
	{Gharbia, "Gharbia", []string{"gharbia", "gharbeya", "الغربية", "tanta", "mahalla"}},
	{Monufia, "Monufia", []string{"monufia", "menoufia", "menofia", "المنوفية", "shebin"}},
	{Beheira, "Beheira", []string{"beheira", "behira", "البحيرة", "damanhour"}},
	{Ismailia, "Ismailia", []string{"ismailia", "الإسماعيلية", "الاسماعيلية"}},
	{Suez, "Suez", []string{"suez", "السويس"}},
	{PortSaid, "Port Said", []string{"port said", "portsaid", "بورسعيد", "بور سعيد"}},
	{Fayoum, "Fayoum", []string{"fayoum", "faiyum", "الفيوم"}},
	{BeniSuef, "Beni Suef", []string{"beni suef", "bani sweif", "بني سويف"}},
	{Minya, "Minya", []string{"minya", "menia", "المنيا"}},
	{Asyut, "Asyut", []string{"asyut", "assiut", "أسيوط", "اسيوط"}},
	{Sohag, "Sohag", []string{"sohag", "سوهاج"}},
	{Qena, "Qena", []string{"qena", "قنا"}},
	{Luxor, "Luxor", []string{"luxor", "الأقصر", "الاقصر"}},
	{Aswan, "Aswan", []string{"aswan", "أسوان", "اسوان"}},
	{RedSea, "Red Sea", []string{"red sea", "hurghada", "البحر الأحمر", "الغردقة"}},
	{SouthSinai, "South Sinai", []string{"south sinai", "sharm", "جنوب سيناء", "شرم"}},
}

// supported governorates, in the order pickers show them.
var supported = []Code{Cairo, Giza, Alexandria, Qalyubia}

var supportedSet = func() map[Code]struct{} {
	m := make(map[Code]struct{}, len(supported))
	for _, c := range supported {
		m[c] = struct{}{}
	}
	return m
}()

// Normalize returns the canonical code for raw, or false for empty input or no match.
func Normalize(raw string) (Code, bool) {
	in := strings.ToLower(strings.TrimSpace(raw))
	if in == "" {
		return "", false
	}
	for _, e := range table {
		for _, a := range e.Aliases {
			if strings.Contains(in, a) {
				return e.Code, true
			}
		}
	}
	return "", false
}

func IsSupported(c Code) bool {
	_, ok := supportedSet[c]
	return ok
}

// Supported returns a copy of the supported codes in display order.
func Supported() []Code {
	out := make([]Code, len(supported))
	copy(out, supported)
	return out
}

// Known reports whether c is a code of the alias table.
func Known(c Code) bool {
	for _, e := range table {
		if e.Code == c {
			return true
		}
	}
	return false
}

func Label(c Code) string {
	for _, e := range table {
		if e.Code == c {
			return e.Label
		}
	}
	return string(c)
}

// Entries returns a copy of the alias table in evaluation order.
func Entries() []Entry {
	out := make([]Entry, len(table))
	for i, e := range table {
		out[i] = Entry{Code: e.Code, Label: e.Label, Aliases: append([]string(nil), e.Aliases...)}
	}
	return out
}

type Collision struct {
	Alias  string
	Owner  Code
	Winner Code
}

// Collisions lists aliases that can never resolve to their own entry because
// an earlier entry owns a substring of them. Known case: "shubra el kheima"
// (Qalyubia) resolves to Cairo through "shubra".
func Collisions() []Collision {
	var out []Collision
	for _, e := range table {
		for _, a := range e.Aliases {
			if got, _ := Normalize(a); got != e.Code {
				out = append(out, Collision{Alias: a, Owner: e.Code, Winner: got})
			}
		}
	}
	return out
}
