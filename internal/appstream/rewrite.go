package appstream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/flathub-infra/buildhooks/internal/backend"
)

// OwnedPrefix is the namespace this tool owns inside the <custom>
// section. Everything under it is purged and re-derived on every
// publish, with two exceptions: the manifest key, which upstream is
// allowed to set, and the build keys, which survive a republish that
// carries no fresh build record.
const OwnedPrefix = "flathub::"

const (
	manifestKey = "flathub::manifest"
	buildPrefix = "flathub::build::"
)

// RewriteComponent injects the storefront and build facts into the
// document's single component, replacing any previously injected facts.
// It reports whether the document was modified; an unmodified document
// renders byte-identical to its input, which is what publish uses to
// skip re-commits.
func RewriteComponent(doc *Document, refstring string, info *backend.StorefrontInfo, build *backend.BuildExtended) (bool, error) {
	children := doc.Root().ChildElements()
	if len(children) != 1 {
		return false, fmt.Errorf("expected exactly 1 <component> tag, found %d", len(children))
	}
	component := children[0]

	changed := purgeOwnedKeys(component, build != nil)

	setValue := func(key string, value *string) {
		if value == nil {
			return
		}
		custom := findOrCreate(component, "custom", "", "")
		findOrCreate(custom, "value", "key", key).SetText(*value)
		changed = true
	}

	if v := info.Verification; v != nil {
		setValue("flathub::verification::verified", boolString(v.Verified))
		setValue("flathub::verification::timestamp", v.Timestamp)
		setValue("flathub::verification::method", v.Method)
		setValue("flathub::verification::login_name", v.LoginName)
		setValue("flathub::verification::login_provider", v.LoginProvider)
		setValue("flathub::verification::website", v.Website)
		// The flag's presence, not its value, is what gets published.
		setValue("flathub::verification::login_is_organization", boolString(v.LoginIsOrganization != nil))
	}

	if p := info.Pricing; p != nil {
		setValue("flathub::pricing::recommended_donation", intString(p.RecommendedDonation))
		setValue("flathub::pricing::minimum_payment", intString(p.MinimumPayment))
	}

	if build != nil {
		setValue("flathub::build::build_log_url", build.Build.BuildLogURL)
		for _, ref := range build.BuildRefs {
			if ref.RefName == refstring && ref.BuildLogURL != nil {
				setValue("flathub::build::build_ref_log_url", ref.BuildLogURL)
				break
			}
		}
	}

	return changed, nil
}

// purgeOwnedKeys drops every previously injected fact from all <custom>
// blocks. Prefix matching is case-insensitive, but the keys written back
// by RewriteComponent keep their exact casing.
func purgeOwnedKeys(component *etree.Element, haveBuild bool) bool {
	changed := false
	for _, custom := range component.SelectElements("custom") {
		for _, value := range custom.ChildElements() {
			attr := value.SelectAttr("key")
			if attr == nil {
				continue
			}
			key := strings.ToLower(attr.Value)
			if !strings.HasPrefix(key, OwnedPrefix) {
				continue
			}
			if key == manifestKey {
				// Upstream is allowed to set the manifest key.
				continue
			}
			if strings.HasPrefix(key, buildPrefix) && !haveBuild {
				// On republishes, preserve the previous build log URL.
				continue
			}
			removeWithTail(custom, value)
			changed = true
		}
	}
	return changed
}

// findOrCreate locates a direct child by tag (and optionally by an
// attribute value); the full key comparison is case-sensitive. A created
// element gets a trailing newline so the serialized file stays readable.
func findOrCreate(parent *etree.Element, tag, attrKey, attrValue string) *etree.Element {
	for _, el := range parent.SelectElements(tag) {
		if attrKey == "" || el.SelectAttrValue(attrKey, "") == attrValue {
			return el
		}
	}
	el := parent.CreateElement(tag)
	parent.CreateCharData("\n  ")
	if attrKey != "" {
		el.CreateAttr(attrKey, attrValue)
	}
	return el
}

// removeWithTail removes a child element together with the whitespace
// that trailed it, so repeated purge-and-reinject cycles converge on
// the same bytes.
func removeWithTail(parent, el *etree.Element) {
	idx := el.Index()
	parent.RemoveChildAt(idx)
	if idx < len(parent.Child) {
		if _, ok := parent.Child[idx].(*etree.CharData); ok {
			parent.RemoveChildAt(idx)
		}
	}
}

func boolString(b bool) *string {
	s := "false"
	if b {
		s = "true"
	}
	return &s
}

func intString(n *int) *string {
	if n == nil {
		return nil
	}
	s := strconv.Itoa(*n)
	return &s
}
