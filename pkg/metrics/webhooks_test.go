package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestWebhookMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWebhookMetrics(reg)

	metrics.IncReceived("mercadopago", "payment.updated")
	metrics.IncProcessed("mercadopago", "payment.updated")
	metrics.IncFailed("mercadopago", "payment.updated")
	metrics.IncUnknownStatus("mercadopago", "weird_status")
	metrics.ObserveDuration("mercadopago", 120*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for _, name := range []string{"webhook_received_total", "webhook_processed_total", "webhook_failed_total"} {
		if got, err := fetchCounterValue(mfs, name, "event_type", "payment.updated"); err != nil {
			t.Fatalf("fetch %s: %v", name, err)
		} else if got != 1 {
			t.Fatalf("expected %s=1, got %f", name, got)
		}
	}

	if got, err := fetchCounterValue(mfs, "webhook_unknown_status_total", "status", "weird_status"); err != nil {
		t.Fatalf("fetch unknown status: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown status=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "webhook_processing_duration_seconds", "source", "mercadopago"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var metrics *WebhookMetrics
	metrics.IncReceived("mercadopago", "payment.updated")
	metrics.ObserveDuration("mercadopago", time.Second)

	empty := NewWebhookMetrics(nil)
	empty.IncProcessed("mercadopago", "payment.updated")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
