package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStyle = errors.New("unknown style")

const identityBlock = `Photorealistic transformation of the person in the uploaded image.

IDENTITY LOCK (CRITICAL):
Preserve the person’s facial identity, age, gender, and ethnicity across ALL generated images.
Do NOT change facial structure.
Do NOT replace the face or generate a different person.
The SAME person must appear consistently in every image.

GLOBAL VISUAL STYLE:
Photography style: ultra-photorealistic cinematic portrait
Lens: 85mm DSLR
Lighting: professional studio lighting or cinematic lighting
Detail level: ultra-detailed, high resolution, realistic skin texture
Mood: confident, professional, authoritative
Quality: sharp focus, natural proportions, realistic materials`

const negativeBlock = `NEGATIVE PROMPT:
cartoon, anime, illustration, painting, CGI, 3d render,
low resolution, blurry, distorted face,
extra fingers, extra limbs, bad anatomy,
face swap, different person, inconsistent face,
overprocessed skin, artificial look`

const roleHeader = "========================\nGENERATE TARGET ROLE:\n"

type scene struct {
	Role        string
	Description string
}

var scenes = map[string]scene{
	"pilot": {
		Role:        "Airline Pilot",
		Description: "Professional airline pilot wearing a navy pilot uniform with captain stripes, standing inside a commercial airplane cockpit, confident and authoritative posture.",
	},
	"ship_captain": {
		Role:        "Ship Captain",
		Description: "Ship captain wearing a white naval uniform with gold insignia, standing on the bridge of a large ocean vessel, sea visible through windows, strong leadership presence.",
	},
	"army_chief": {
		Role:        "Army Chief",
		Description: "High-ranking army chief wearing a decorated military uniform with medals and badges, standing in a military command headquarters, authoritative stance, dramatic lighting.",
	},
	"doctor": {
		Role:        "Doctor",
		Description: "Medical doctor wearing a clean white lab coat with a stethoscope, modern hospital environment, trustworthy and professional appearance, soft professional lighting.",
	},
	"athlete": {
		Role:        "Pro Athlete",
		Description: "Professional athlete wearing high-performance sportswear, stadium background with dramatic lights, powerful athletic pose, dynamic energy.",
	},
	"teacher": {
		Role:        "Teacher",
		Description: "Professional teacher wearing smart formal attire, modern classroom background with books and board, warm and approachable expression.",
	},
	"businessman": {
		Role:        "Executive",
		Description: "Corporate executive wearing a tailored luxury business suit, modern corporate office or city skyline background, confident executive posture.",
	},
}

// Scene returns the role section for styleID.
func Scene(styleID string) (string, bool) {
	s, ok := scenes[styleID]
	if !ok {
		return "", false
	}
	return "ROLE: " + s.Role + "\n" + s.Description, true
}

// Build returns the full generation prompt for styleID. Unknown ids produce a
// prompt with an empty role section; use Strict to reject them.
func Build(styleID string) string {
	role, _ := Scene(styleID)

	var b strings.Builder
	b.Grow(len(identityBlock) + len(negativeBlock) + len(roleHeader) + len(role) + 8)
	b.WriteString(identityBlock)
	b.WriteString("\n\n")
	b.WriteString(negativeBlock)
	b.WriteString("\n\n")
	b.WriteString(roleHeader)
	b.WriteString(role)
	return b.String()
}

func Strict(styleID string) (string, error) {
	if _, ok := scenes[styleID]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, styleID)
	}
	return Build(styleID), nil
}
