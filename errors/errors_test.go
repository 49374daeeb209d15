package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		code          ErrorCode
		wantCategory  ErrorCategory
		wantRetryable bool
	}{
		{"timeout", ErrCodeTimeout, CategoryTransient, true},
		{"no_subscribers", ErrCodeNoSubscribers, CategoryTransient, true},
		{"not_registered", ErrCodeNotRegistered, CategoryPermanent, false},
		{"invalid_config", ErrCodeInvalidConfig, CategoryPermanent, false},
		{"sensor_crashed", ErrCodeSensorCrashed, CategoryPermanent, false},
		{"handler_failed", ErrCodeHandlerFailed, CategoryInternal, false},
		{"panic", ErrCodePanic, CategoryInternal, false},
		{"unknown", ErrorCode("BOGUS"), CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "msg")
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Retryable() != tt.wantRetryable {
				t.Errorf("Retryable() = %v, want %v", err.Retryable(), tt.wantRetryable)
			}
			if err.Error() != "msg" {
				t.Errorf("Error() = %q", err.Error())
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should be set")
			}
		})
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(ErrCodeAlreadyRunning, WithEndpoint("clock"))
	if err.Error() != "endpoint already running" || err.Endpoint() != "clock" {
		t.Errorf("FromCode() = %q from %q", err.Error(), err.Endpoint())
	}
	if FromCode(ErrorCode("BOGUS")).Error() != "unknown error" {
		t.Error("unknown code should describe itself as unknown error")
	}
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(ErrCodeTimeout, "slow", WithMetadata("tick", "4"), WithMetadata("tick", "5"))
	md := err.Metadata()
	if md["tick"] != "5" {
		t.Errorf("Metadata()[tick] = %q, want last value", md["tick"])
	}
	md["tick"] = "changed"
	if err.Metadata()["tick"] != "5" {
		t.Error("Metadata() should return a copy")
	}
	if md := New(ErrCodeInternal, "x").Metadata(); md == nil || len(md) != 0 {
		t.Errorf("Metadata() = %v, want empty map", md)
	}
}

func TestHandlerFailed(t *testing.T) {
	cause := fmt.Errorf("tracker overloaded")
	err := HandlerFailed("tracker-1", "sim.detect", cause)

	if err.Endpoint() != "tracker-1" || err.Topic() != "sim.detect" {
		t.Errorf("Endpoint/Topic = %s/%s", err.Endpoint(), err.Topic())
	}
	if !errors.Is(err, cause) {
		t.Error("HandlerFailed should wrap its cause")
	}
	want := "endpoint tracker-1: handler for sim.detect failed: tracker overloaded"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSensorCrashed(t *testing.T) {
	err := SensorCrashed("camera-1", "lens failure", WithMetadata("tick", "3"))
	if err.Code() != ErrCodeSensorCrashed || err.Endpoint() != "camera-1" {
		t.Errorf("SensorCrashed() = %s from %s", err.Code(), err.Endpoint())
	}
	if err.Error() != "sensor camera-1 crashed: lens failure" {
		t.Errorf("Error() = %v", err.Error())
	}
	if err.Metadata()["tick"] != "3" {
		t.Error("options should apply after defaults")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "message") != nil || WrapWithCode(nil, ErrCodeInternal, "message") != nil {
		t.Fatal("wrapping nil should return nil")
	}

	cause := fmt.Errorf("disk full")
	err := Wrap(cause, "write report")
	if err.Error() != "write report: disk full" || err.Unwrap() != cause {
		t.Errorf("Wrap() = %q", err.Error())
	}
	if err.Code() != ErrCodeInternal {
		t.Errorf("Code() = %v, want INTERNAL", err.Code())
	}
}

func TestWrapInheritsContext(t *testing.T) {
	original := SensorCrashed("camera-2", "unplugged", WithMetadata("tick", "9"))
	wrapped := Wrap(fmt.Errorf("run: %w", original), "simulation", WithTopic("sim.tick"))

	if wrapped.Code() != ErrCodeSensorCrashed {
		t.Errorf("Code() = %v, want SENSOR_CRASHED", wrapped.Code())
	}
	if wrapped.Endpoint() != "camera-2" || wrapped.Metadata()["tick"] != "9" {
		t.Error("wrapped error should keep endpoint and metadata")
	}
	if wrapped.Topic() != "sim.tick" {
		t.Errorf("Topic() = %q, options should apply after inherited context", wrapped.Topic())
	}
	if !wrapped.Timestamp().Equal(original.Timestamp()) {
		t.Error("wrapped error should keep the original timestamp")
	}
	if !errors.Is(wrapped, original) {
		t.Error("wrapped error should match the original with errors.Is")
	}
}

func TestWrapContextErrors(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{context.DeadlineExceeded, ErrCodeTimeout},
		{fmt.Errorf("await: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{context.Canceled, ErrCodeCanceled},
	}
	for _, tt := range tests {
		err := Wrap(tt.err, "await")
		if err.Code() != tt.want {
			t.Errorf("Wrap(%v).Code() = %v, want %v", tt.err, err.Code(), tt.want)
		}
		if !errors.Is(err, tt.err) {
			t.Errorf("Wrap(%v) lost its cause", tt.err)
		}
	}
}

func TestWrapWithCode(t *testing.T) {
	err := WrapWithCode(fmt.Errorf("parse"), ErrCodeInvalidConfig, "loading sim.toml", WithMetadata("path", "sim.toml"))
	if err.Code() != ErrCodeInvalidConfig || err.Metadata()["path"] != "sim.toml" {
		t.Errorf("WrapWithCode() = %s %v", err.Code(), err.Metadata())
	}
}

func TestCodeAndIs(t *testing.T) {
	err := fmt.Errorf("loop: %w", RecoverPanic("boom"))

	if Code(err) != ErrCodePanic || !Is(err, ErrCodePanic) {
		t.Errorf("Code() = %q, want PANIC through the chain", Code(err))
	}
	if Is(err, ErrCodeTimeout) {
		t.Error("Is() should return false for a different code")
	}
	plain := fmt.Errorf("plain")
	if Code(plain) != "" || Is(plain, "") {
		t.Error("plain errors carry no code")
	}
}

func TestRecoverPanic(t *testing.T) {
	tests := []struct {
		value       any
		wantMessage string
		wantType    string
	}{
		{errors.New("panic error"), "panic error", "*errors.errorString"},
		{"something went wrong", "something went wrong", "string"},
		{42, "42", "int"},
	}
	for _, tt := range tests {
		err := RecoverPanic(tt.value, WithEndpoint("tracker-1"))
		if err.Code() != ErrCodePanic || err.Error() != tt.wantMessage {
			t.Errorf("RecoverPanic(%v) = %s %q", tt.value, err.Code(), err.Error())
		}
		if got := err.Metadata()["panic_value"]; got != tt.wantType {
			t.Errorf("panic_value = %q, want %q", got, tt.wantType)
		}
		if err.Endpoint() != "tracker-1" {
			t.Errorf("Endpoint() = %q", err.Endpoint())
		}
	}
	if RecoverPanic(nil) != nil {
		t.Error("RecoverPanic(nil) should return nil")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := HandlerFailed("tracker-1", "sim.detect", fmt.Errorf("underlying issue"))
	data, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("Marshal failed: %v", jerr)
	}

	var rec map[string]any
	if jerr := json.Unmarshal(data, &rec); jerr != nil {
		t.Fatalf("report entry is not JSON: %v", jerr)
	}
	want := map[string]any{
		"code":      "HANDLER_FAILED",
		"category":  "internal",
		"cause":     "underlying issue",
		"endpoint":  "tracker-1",
		"topic":     "sim.detect",
		"retryable": false,
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	if _, ok := rec["metadata"]; ok {
		t.Error("empty metadata should be omitted")
	}
	if rec["timestamp"] == "" {
		t.Error("timestamp should be recorded")
	}
}
