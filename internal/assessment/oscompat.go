// File path: internal/assessment/oscompat.go
package assessment

import (
	"regexp"
	"strings"
)

// Target is a migration destination platform.
type Target string

const (
	// TargetROKS is Red Hat OpenShift on IBM Cloud (OpenShift Virtualization).
	TargetROKS Target = "roks"
	// TargetVSI is an IBM Cloud Virtual Server Instance.
	TargetVSI Target = "vsi"
)

// ParseTarget accepts the wire form of a target, defaulting to ROKS.
func ParseTarget(raw string) (Target, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "roks", "openshift", "ocp":
		return TargetROKS, true
	case "vsi", "vpc":
		return TargetVSI, true
	}
	return TargetROKS, false
}

// SupportLevel classifies how a guest OS fares on a target.
type SupportLevel string

const (
	Supported            SupportLevel = "supported"
	SupportedWithCaveats SupportLevel = "supported_with_caveats"
	Unsupported          SupportLevel = "unsupported"
	UnknownSupport       SupportLevel = "unknown"
)

// OSVerdict is the compatibility answer for one VM and one target.
type OSVerdict struct {
	Target      Target       `json:"target"`
	Key         string       `json:"key"`
	Level       SupportLevel `json:"level"`
	Caveats     []string     `json:"caveats,omitempty"`
	Replacement string       `json:"replacement,omitempty"`
}

type osRule struct {
	roks        SupportLevel
	vsi         SupportLevel
	caveats     []string
	replacement string
}

// osMatrix keys are normalized guest identifiers; family-only keys act as
// fallbacks when the version could not be extracted.
var osMatrix = map[string]osRule{
	"windows-2022":   {roks: Supported, vsi: Supported},
	"windows-2019":   {roks: Supported, vsi: Supported},
	"windows-2016":   {roks: Supported, vsi: Supported},
	"windows-2012r2": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"extended security updates ended; plan an OS upgrade"}, replacement: "windows-2019"},
	"windows-2012":   {roks: Unsupported, vsi: SupportedWithCaveats, caveats: []string{"end of life; custom image required on VSI"}, replacement: "windows-2019"},
	"windows-2008r2": {roks: Unsupported, vsi: Unsupported, replacement: "windows-2019"},
	"windows-2008":   {roks: Unsupported, vsi: Unsupported, replacement: "windows-2019"},
	"windows-2003":   {roks: Unsupported, vsi: Unsupported, replacement: "windows-2019"},
	"windows-11":     {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"desktop OS; verify licensing for cloud hosting", "vTPM must be recreated on the target"}},
	"windows-10":     {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"desktop OS; verify licensing for cloud hosting"}},
	"windows":        {roks: UnknownSupport, vsi: UnknownSupport},

	"rhel-9":   {roks: Supported, vsi: Supported},
	"rhel-8":   {roks: Supported, vsi: Supported},
	"rhel-7":   {roks: Supported, vsi: SupportedWithCaveats, caveats: []string{"RHEL 7 is in extended lifecycle; verify subscription"}},
	"rhel-6":   {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"virtio drivers must be present before conversion"}, replacement: "rhel-8"},
	"rhel-5":   {roks: Unsupported, vsi: Unsupported, replacement: "rhel-8"},
	"rhel":     {roks: Supported, vsi: Supported},
	"centos-8": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"CentOS 8 is end of life; consider Rocky or Alma"}, replacement: "rocky-8"},
	"centos-7": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"CentOS 7 is end of life"}, replacement: "rocky-8"},
	"centos-6": {roks: Unsupported, vsi: Unsupported, replacement: "rocky-8"},
	"centos":   {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"CentOS is end of life"}},
	"rocky-9":  {roks: Supported, vsi: Supported},
	"rocky-8":  {roks: Supported, vsi: Supported},
	"rocky":    {roks: Supported, vsi: Supported},
	"alma-9":   {roks: Supported, vsi: Supported},
	"alma-8":   {roks: Supported, vsi: Supported},
	"alma":     {roks: Supported, vsi: Supported},

	"ubuntu-22.04": {roks: Supported, vsi: Supported},
	"ubuntu-20.04": {roks: Supported, vsi: Supported},
	"ubuntu-18.04": {roks: Supported, vsi: SupportedWithCaveats, caveats: []string{"18.04 is past standard support"}},
	"ubuntu-16.04": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"16.04 requires ESM; plan an upgrade"}, replacement: "ubuntu-22.04"},
	"ubuntu":       {roks: Supported, vsi: Supported},

	"sles-15": {roks: Supported, vsi: Supported},
	"sles-12": {roks: Supported, vsi: SupportedWithCaveats, caveats: []string{"SLES 12 general support has ended"}},
	"sles-11": {roks: Unsupported, vsi: Unsupported, replacement: "sles-15"},
	"sles":    {roks: Supported, vsi: Supported},

	"debian-12": {roks: Supported, vsi: Supported},
	"debian-11": {roks: Supported, vsi: Supported},
	"debian-10": {roks: Supported, vsi: SupportedWithCaveats, caveats: []string{"Debian 10 is in LTS-only support"}},
	"debian-9":  {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"Debian 9 is end of life"}, replacement: "debian-12"},
	"debian":    {roks: Supported, vsi: Supported},

	"oracle-9": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"UEK kernels need virtio verification"}},
	"oracle-8": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"UEK kernels need virtio verification"}},
	"oracle-7": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"UEK kernels need virtio verification"}},
	"oracle-6": {roks: Unsupported, vsi: SupportedWithCaveats, caveats: []string{"end of life; custom image required"}, replacement: "oracle-8"},
	"oracle":   {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"UEK kernels need virtio verification"}},

	"photon":  {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"Photon OS is tuned for vSphere; validate guest agents"}},
	"freebsd": {roks: SupportedWithCaveats, vsi: SupportedWithCaveats, caveats: []string{"community-supported guest; validate drivers"}},
	"solaris": {roks: Unsupported, vsi: Unsupported},
	"other":   {roks: UnknownSupport, vsi: UnknownSupport},
}

var (
	windowsServerRe  = regexp.MustCompile(`windows server (\d{4})\s*(r2)?`)
	windowsDesktopRe = regexp.MustCompile(`windows (10|11)`)
	versionedRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// NormalizeGuestOS folds an RVTools guest OS string to a matrix key, e.g.
// "Microsoft Windows Server 2019 (64-bit)" -> "windows-2019".
func NormalizeGuestOS(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return "other"
	}
	switch {
	case strings.Contains(lowered, "windows"):
		if m := windowsServerRe.FindStringSubmatch(lowered); m != nil {
			key := "windows-" + m[1]
			if m[2] != "" {
				key += "r2"
			}
			return key
		}
		if m := windowsDesktopRe.FindStringSubmatch(lowered); m != nil {
			return "windows-" + m[1]
		}
		return "windows"
	case strings.Contains(lowered, "red hat"), strings.Contains(lowered, "rhel"):
		return familyWithVersion("rhel", lowered)
	case strings.Contains(lowered, "centos"):
		return familyWithVersion("centos", lowered)
	case strings.Contains(lowered, "rocky"):
		return familyWithVersion("rocky", lowered)
	case strings.Contains(lowered, "alma"):
		return familyWithVersion("alma", lowered)
	case strings.Contains(lowered, "ubuntu"):
		return familyWithVersion("ubuntu", lowered)
	case strings.Contains(lowered, "suse"), strings.Contains(lowered, "sles"):
		return familyWithVersion("sles", lowered)
	case strings.Contains(lowered, "debian"):
		return familyWithVersion("debian", lowered)
	case strings.Contains(lowered, "solaris"), strings.Contains(lowered, "sunos"):
		return "solaris"
	case strings.Contains(lowered, "oracle"):
		return familyWithVersion("oracle", lowered)
	case strings.Contains(lowered, "photon"):
		return "photon"
	case strings.Contains(lowered, "freebsd"):
		return "freebsd"
	case strings.Contains(lowered, "linux"):
		return "other"
	}
	return "other"
}

func familyWithVersion(family, lowered string) string {
	if m := versionedRe.FindStringSubmatch(lowered); m != nil {
		version := m[1]
		// Ubuntu matrix keys carry the point release; everyone else majors.
		if family != "ubuntu" {
			if dot := strings.Index(version, "."); dot > 0 {
				version = version[:dot]
			}
		}
		key := family + "-" + version
		if _, ok := osMatrix[key]; ok {
			return key
		}
	}
	return family
}

// EvaluateOS returns the support verdict for a normalized guest key on the
// given target. Unknown keys degrade to the family rule, then to unknown.
func EvaluateOS(key string, target Target) OSVerdict {
	rule, ok := osMatrix[key]
	if !ok {
		if dash := strings.Index(key, "-"); dash > 0 {
			rule, ok = osMatrix[key[:dash]]
		}
	}
	verdict := OSVerdict{Target: target, Key: key}
	if !ok {
		verdict.Level = UnknownSupport
		return verdict
	}
	switch target {
	case TargetVSI:
		verdict.Level = rule.vsi
	default:
		verdict.Level = rule.roks
	}
	if verdict.Level == SupportedWithCaveats || verdict.Level == Unsupported {
		verdict.Caveats = append(verdict.Caveats, rule.caveats...)
		verdict.Replacement = rule.replacement
	}
	return verdict
}

// EvaluateGuest is the convenience form taking the raw RVTools string.
func EvaluateGuest(raw string, target Target) OSVerdict {
	return EvaluateOS(NormalizeGuestOS(raw), target)
}
