// Package logging provides a standardized field-builder so every component
// of the gateway logs the same vocabulary (component, operation, resource,
// duration...) regardless of which tier or subsystem emitted the entry.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a chainable set of structured log fields.
type Fields map[string]interface{}

// NewFields returns an empty Fields set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus converts Fields to logrus.Fields for use with a *logrus.Logger.
func (f Fields) ToLogrus() logrus.Fields {
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		lf[k] = v
	}
	return lf
}

// TierFields describes which detection tier produced a result and how.
func TierFields(tier int, method string) Fields {
	return NewFields().Component("tier").Custom("tier", tier).Custom("method", method)
}

// PolicyFields describes an operation against the policy document.
func PolicyFields(operation, failureClass string) Fields {
	return NewFields().Component("policy").Operation(operation).Resource("failure_class", failureClass)
}

// ProviderFields describes a call against an LLM provider.
func ProviderFields(operation, provider string) Fields {
	return NewFields().Component("provider").Operation(operation).Custom("provider", provider)
}

// VerdictFields describes an enforcement verdict being emitted.
func VerdictFields(action, verdictID string) Fields {
	return NewFields().Component("verdict").Operation(action).Resource("verdict", verdictID)
}

// HTTPFields describes an HTTP exchange (used by pkg/shared/httpclient callers).
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// AIFields describes a model inference call.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields describes a metric recording event.
func MetricsFields(operation, metricName string, value float64) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields describes a security-relevant event (auth, enforcement).
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields describes the outcome and timing of an operation.
func PerformanceFields(operation string, duration time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(duration).Custom("success", success)
}
