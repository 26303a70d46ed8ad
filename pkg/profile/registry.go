package profile

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// Profile is a named ECU profile: an optional DTC code prefix hint and an
// optional key-derivation Transform. A nil Transform means manual mode:
// the operator supplies the key out of band.
type Profile struct {
	Name      string
	DTCPrefix string
	Transform *Transform
}

// Registry persists named profiles as INI sections via gopkg.in/ini.v1: one
// section per profile, keys dtc_prefix, algo, and key_hex (XOR kinds) or
// shift (rotate) depending on the transform kind, and no algo key at all for
// manual mode.
type Registry struct {
	Path string
}

func NewRegistry(path string) *Registry {
	return &Registry{Path: path}
}

// Load reads every profile section from the registry file. A missing file
// is treated as an empty registry rather than an error.
func (r *Registry) Load() (map[string]Profile, error) {
	profiles := map[string]Profile{}

	if _, err := os.Stat(r.Path); os.IsNotExist(err) {
		return profiles, nil
	}

	f, err := ini.Load(r.Path)
	if err != nil {
		return nil, fmt.Errorf("profile: load %s: %w", r.Path, err)
	}

	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		p, err := sectionToProfile(section)
		if err != nil {
			return nil, err
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

// Save persists profiles, overwriting the registry file at r.Path.
func (r *Registry) Save(profiles map[string]Profile) error {
	f := ini.Empty()
	for name, p := range profiles {
		section, err := f.NewSection(name)
		if err != nil {
			return fmt.Errorf("profile: save %s: %w", name, err)
		}
		if p.DTCPrefix != "" {
			section.Key("dtc_prefix").SetValue(p.DTCPrefix)
		}
		if p.Transform != nil {
			section.Key("algo").SetValue(p.Transform.Name())
			switch p.Transform.Kind {
			case XorConstant:
				section.Key("key_hex").SetValue(fmt.Sprintf("%02X", p.Transform.Const))
			case RepeatingXor:
				section.Key("key_hex").SetValue(hex.EncodeToString(p.Transform.Key))
			case RotateLeft:
				section.Key("shift").SetValue(fmt.Sprintf("%d", p.Transform.Shift))
			}
		}
	}
	if err := f.SaveTo(r.Path); err != nil {
		return fmt.Errorf("profile: save %s: %w", r.Path, err)
	}
	return nil
}

// Get loads the registry and returns the named profile.
func (r *Registry) Get(name string) (Profile, bool, error) {
	profiles, err := r.Load()
	if err != nil {
		return Profile{}, false, err
	}
	p, ok := profiles[name]
	return p, ok, nil
}

// Put loads the registry, upserts p, and saves it back.
func (r *Registry) Put(p Profile) error {
	profiles, err := r.Load()
	if err != nil {
		return err
	}
	profiles[p.Name] = p
	return r.Save(profiles)
}

func sectionToProfile(section *ini.Section) (Profile, error) {
	p := Profile{
		Name:      section.Name(),
		DTCPrefix: section.Key("dtc_prefix").String(),
	}

	algo := section.Key("algo").String()
	if algo == "" {
		return p, nil
	}

	switch {
	case algo == "identity":
		p.Transform = &Transform{Kind: Identity}
	case algo == "reverse":
		p.Transform = &Transform{Kind: Reverse}
	case algo == "rotl_1" || algo == "rotl_2" || algo == "rotl_3":
		shift, err := section.Key("shift").Int()
		if err != nil {
			return Profile{}, fmt.Errorf("profile: section %s: invalid shift: %w", section.Name(), err)
		}
		p.Transform = &Transform{Kind: RotateLeft, Shift: shift}
	case len(algo) >= 5 && algo[:4] == "xor_":
		keyHex := section.Key("key_hex").String()
		b, err := hex.DecodeString(keyHex)
		if err != nil || len(b) != 1 {
			return Profile{}, fmt.Errorf("profile: section %s: invalid key_hex for xor algo", section.Name())
		}
		p.Transform = &Transform{Kind: XorConstant, Const: b[0]}
	case len(algo) >= 9 && algo[:8] == "rep_xor_":
		keyHex := section.Key("key_hex").String()
		b, err := hex.DecodeString(keyHex)
		if err != nil {
			return Profile{}, fmt.Errorf("profile: section %s: invalid key_hex for rep_xor algo", section.Name())
		}
		p.Transform = &Transform{Kind: RepeatingXor, Key: b}
	default:
		return Profile{}, fmt.Errorf("profile: section %s: unknown algo %q", section.Name(), algo)
	}
	return p, nil
}
