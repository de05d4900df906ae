package attribute

import (
	"strings"

	"github.com/google/uuid"
)

// ServiceUUID is the GATT service a hub advertises while it is waiting to
// be onboarded. All onboarding attributes live under this service.
var ServiceUUID = uuid.MustParse("FBE51523-B3E6-4F68-B6DA-410C0BBA1A78")

// Attribute UUIDs exposed under ServiceUUID.
var (
	AvailableNetworksUUID = uuid.MustParse("FBE51524-B3E6-4F68-B6DA-410C0BBA1A78")
	ConnectionStateUUID   = uuid.MustParse("FBE51525-B3E6-4F68-B6DA-410C0BBA1A78")
	ReachableAddressUUID  = uuid.MustParse("FBE51526-B3E6-4F68-B6DA-410C0BBA1A78")
	VersionUUID           = uuid.MustParse("FBE51527-B3E6-4F68-B6DA-410C0BBA1A78")
	SSIDUUID              = uuid.MustParse("FBE51528-B3E6-4F68-B6DA-410C0BBA1A78")
	CredentialsUUID       = uuid.MustParse("FBE51529-B3E6-4F68-B6DA-410C0BBA1A78")
)

// Property is a bitmask of the GATT operations an attribute supports.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropNotify
)

// Attribute describes one typed endpoint under the onboarding service.
type Attribute struct {
	Name  string
	UUID  uuid.UUID
	Props Property
}

// Attributes lists every onboarding attribute in discovery order.
var Attributes = []Attribute{
	{Name: "AVAILABLE_NETWORKS", UUID: AvailableNetworksUUID, Props: PropNotify},
	{Name: "CONNECTION_STATE", UUID: ConnectionStateUUID, Props: PropRead | PropNotify},
	{Name: "REACHABLE_ADDRESS", UUID: ReachableAddressUUID, Props: PropRead},
	{Name: "VERSION", UUID: VersionUUID, Props: PropRead},
	{Name: "SSID", UUID: SSIDUUID, Props: PropWrite},
	{Name: "CREDENTIALS", UUID: CredentialsUUID, Props: PropWrite},
}

// UUIDs returns the UUIDs of all onboarding attributes.
func UUIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(Attributes))
	for i, a := range Attributes {
		ids[i] = a.UUID
	}
	return ids
}

// Name returns the attribute name for id, or the UUID string if id is not
// an onboarding attribute.
func Name(id uuid.UUID) string {
	for _, a := range Attributes {
		if a.UUID == id {
			return a.Name
		}
	}
	return id.String()
}

// Lookup finds an attribute by UUID.
func Lookup(id uuid.UUID) (Attribute, bool) {
	for _, a := range Attributes {
		if a.UUID == id {
			return a, true
		}
	}
	return Attribute{}, false
}

// MatchesService reports whether the advertised identifier s names the
// onboarding service. Platforms report UUIDs in either case.
func MatchesService(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), ServiceUUID.String())
}
