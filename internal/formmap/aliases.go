// internal/formmap/aliases.go
package formmap

// CanonicalKey names a semantic citation attribute independent of how any
// particular document or form labels it.
type CanonicalKey string

const (
	CitationNumber    CanonicalKey = "citation_number"
	LicensePlate      CanonicalKey = "license_plate"
	ViolationDate     CanonicalKey = "violation_date"
	ViolationTime     CanonicalKey = "violation_time"
	ViolationLocation CanonicalKey = "violation_location"
	VehicleMake       CanonicalKey = "vehicle_make"
	VehicleModel      CanonicalKey = "vehicle_model"
	VehicleColor      CanonicalKey = "vehicle_color"
	FineAmount        CanonicalKey = "fine_amount"
	OfficerBadge      CanonicalKey = "officer_badge"
	ViolationCode     CanonicalKey = "violation_code"
)

// AliasEntry pairs a canonical key with the labels known to denote it.
type AliasEntry struct {
	Key     CanonicalKey `json:"key"`
	Aliases []string     `json:"aliases"`
}

// aliasTable is static configuration. Its order is significant: keys are tried
// in this order when pairing form inputs with values.
var aliasTable = []AliasEntry{
	{CitationNumber, []string{"Citation Number", "Ticket Number", "Citation ID", "citation_number", "ticket_number"}},
	{LicensePlate, []string{"License Plate", "Plate Number", "Vehicle License", "license_plate", "plate"}},
	{ViolationDate, []string{"Violation Date", "Date of Violation", "Issued Date", "violation_date", "date"}},
	{ViolationTime, []string{"Violation Time", "Time of Violation", "Issued Time", "violation_time", "time"}},
	{ViolationLocation, []string{"Violation Location", "Location", "Address", "violation_location", "location"}},
	{VehicleMake, []string{"Vehicle Make", "Make", "vehicle_make"}},
	{VehicleModel, []string{"Vehicle Model", "Model", "vehicle_model"}},
	{VehicleColor, []string{"Vehicle Color", "Color", "vehicle_color"}},
	{FineAmount, []string{"Fine Amount", "Amount", "Total", "fine_amount", "amount"}},
	{OfficerBadge, []string{"Officer Badge", "Badge Number", "officer_badge", "badge"}},
	{ViolationCode, []string{"Violation Code", "Code", "violation_code"}},
}

// Aliases returns a deep copy of the alias table in declaration order.
func Aliases() []AliasEntry {
	out := make([]AliasEntry, len(aliasTable))
	for i, e := range aliasTable {
		out[i] = AliasEntry{Key: e.Key, Aliases: append([]string(nil), e.Aliases...)}
	}
	return out
}

// Keys returns the canonical keys in declaration order.
func Keys() []CanonicalKey {
	out := make([]CanonicalKey, len(aliasTable))
	for i, e := range aliasTable {
		out[i] = e.Key
	}
	return out
}
