package tenantctx

import (
	"fmt"
)

// mergedKeys are deep-merged by Update; the remaining writable keys are replaced wholesale.
var mergedKeys = map[string]bool{
	"businessProfile": true,
	"branding":        true,
	"faqData":         true,
	"limits":          true,
	"services":        true,
	"salesStrategies": true,
}

// applyPartial merges partial into c. Server-owned keys (tenantId, sessionIds, metadata) and unknown
// keys are rejected.
func applyPartial(c *Context, partial map[string]any) error {
	for k, v := range partial {
		if k == "workflowState" {
			m, err := asObject(k, v)
			if err != nil {
				return err
			}
			c.WorkflowState = m
			continue
		}
		if !mergedKeys[k] {
			return fmt.Errorf("%w: field %q cannot be updated", ErrInvalidUpdate, k)
		}
		m, err := asObject(k, v)
		if err != nil {
			return err
		}
		dst := field(c, k)
		*dst = deepMerge(*dst, m)
	}
	return nil
}

func field(c *Context, k string) *map[string]any {
	switch k {
	case "businessProfile":
		return &c.BusinessProfile
	case "branding":
		return &c.Branding
	case "faqData":
		return &c.FAQData
	case "limits":
		return &c.Limits
	case "services":
		return &c.Services
	default:
		return &c.SalesStrategies
	}
}

func asObject(k string, v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q must be an object", ErrInvalidUpdate, k)
	}
	return m, nil
}

// deepMerge returns dst with src merged in. Nested objects merge recursively; everything else,
// arrays included, is replaced. A nil src value deletes the key.
func deepMerge(dst, src map[string]any) map[string]any {
	if src == nil {
		return dst
	}
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if v == nil {
			delete(out, k)
			continue
		}
		sm, sok := v.(map[string]any)
		dm, dok := out[k].(map[string]any)
		if sok && dok {
			out[k] = deepMerge(dm, sm)
			continue
		}
		out[k] = v
	}
	return out
}
