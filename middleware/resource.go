package middleware

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/duynhne/mc-profile-service/config"
)

// unknownService is the default service name when detection fails
const unknownService = "unknown-service"

// serviceIdentity resolves the service name and namespace.
// Name priority: OTEL_SERVICE_NAME, SERVICE_NAME, pod name without the
// replicaset and pod hashes. Namespace priority: OTEL_RESOURCE_ATTRIBUTES,
// the mounted service account namespace, POD_NAMESPACE, then ENV.
func serviceIdentity(svc config.ServiceConfig) (name, namespace string) {
	name = os.Getenv("OTEL_SERVICE_NAME")
	if name == "" && svc.Name != "" && svc.Name != "unknown" {
		name = svc.Name
	}
	if name == "" {
		pod := os.Getenv("POD_NAME")
		if pod == "" {
			pod, _ = os.Hostname()
		}
		// <deployment>-<replicaset-hash>-<pod-hash>
		if parts := strings.Split(pod, "-"); len(parts) >= 3 {
			name = strings.Join(parts[:len(parts)-2], "-")
		}
	}
	if name == "" {
		name = unknownService
	}

	for _, attr := range strings.Split(os.Getenv("OTEL_RESOURCE_ATTRIBUTES"), ",") {
		if k, v, ok := strings.Cut(attr, "="); ok && k == "service.namespace" {
			return name, v
		}
	}
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return name, strings.TrimSpace(string(data))
	}
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return name, ns
	}
	if svc.Env != "" {
		return name, svc.Env
	}
	return name, "default"
}

// CreateResource creates the OpenTelemetry resource shared by tracing and profiling.
func CreateResource(ctx context.Context, svc config.ServiceConfig) (*resource.Resource, error) {
	name, namespace := serviceIdentity(svc)
	attrs := []resource.Option{
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithContainer(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceNamespaceKey.String(namespace),
			semconv.ServiceVersionKey.String(svc.Version),
			semconv.DeploymentEnvironmentKey.String(svc.Env),
		),
	}

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(name),
			semconv.ServiceNamespaceKey.String(namespace),
		), fmt.Errorf("resource detection partial failure (using fallback): %w", err)
	}
	return res, nil
}

// GetServiceName extracts service name from a resource
func GetServiceName(res *resource.Resource) string {
	if res == nil {
		return unknownService
	}
	if v, ok := res.Set().Value(semconv.ServiceNameKey); ok && v.AsString() != "" {
		return v.AsString()
	}
	return unknownService
}
