package message

import (
	"errors"
	"testing"
)

func TestSetSource_PortDomain(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{name: "lowest valid int", value: 6000, want: "6000"},
		{name: "highest valid int", value: 6999, want: "6999"},
		{name: "valid string", value: "6013", want: "6013"},
		{name: "padded string", value: " 6010 ", want: "6010"},
		{name: "leading zero normalised", value: "06010", want: "6010"},
		{name: "uint16", value: uint16(6500), want: "6500"},
		{name: "int64", value: int64(6001), want: "6001"},
		{name: "just below range", value: 5999, wantErr: true},
		{name: "upper bound excluded", value: 7000, wantErr: true},
		{name: "negative", value: -1, wantErr: true},
		{name: "huge unsigned", value: uint64(1 << 40), wantErr: true},
		{name: "non-numeric string", value: "abc", wantErr: true},
		{name: "empty string", value: "", wantErr: true},
		{name: "float", value: 6010.0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			err := m.SetSource(tt.value)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPort) {
					t.Fatalf("SetSource(%v) error = %v, want ErrInvalidPort", tt.value, err)
				}
				if m.Source() != "" {
					t.Errorf("Source() = %q after rejected set, want empty", m.Source())
				}
				return
			}

			if err != nil {
				t.Fatalf("SetSource(%v) unexpected error: %v", tt.value, err)
			}
			if m.Source() != tt.want {
				t.Errorf("Source() = %q, want %q", m.Source(), tt.want)
			}
		})
	}
}

func TestSetDest_RejectedValueRetainsPrior(t *testing.T) {
	m := New(WithDest(6013))

	for _, bad := range []any{7000, 5999, -1, "not-a-port"} {
		if err := m.SetDest(bad); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("SetDest(%v) error = %v, want ErrInvalidPort", bad, err)
		}
		if m.Dest() != "6013" {
			t.Errorf("Dest() = %q after SetDest(%v), want retained %q", m.Dest(), bad, "6013")
		}
	}
}

func TestNew_FreshMessageHasEmptyPorts(t *testing.T) {
	m := New()
	if m.Source() != "" || m.Dest() != "" {
		t.Errorf("fresh ports = (%q, %q), want empty", m.Source(), m.Dest())
	}

	m = New(WithSource(7000), WithDest("x"))
	if m.Source() != "" || m.Dest() != "" {
		t.Errorf("ports after invalid options = (%q, %q), want empty", m.Source(), m.Dest())
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Message
		wantErr bool
	}{
		{
			name: "set-state with address in payload",
			raw:  "6010,6013,161,lrlt1,1,192.168.86.25",
			want: Message{source: "6010", dest: "6013", Type: "161", Name: "lrlt1", State: "1", Payload: "192.168.86.25"},
		},
		{
			name: "payload keeps commas",
			raw:  "6010,6013,162,,,lamp,192.168.86.25",
			want: Message{source: "6010", dest: "6013", Type: "162", Payload: "lamp,192.168.86.25"},
		},
		{
			name: "three part payload",
			raw:  "6010,6013,161,,,lamp,10.0.0.2,0",
			want: Message{source: "6010", dest: "6013", Type: "161", Payload: "lamp,10.0.0.2,0"},
		},
		{
			name: "missing trailing fields",
			raw:  "6010,6013,001",
			want: Message{source: "6010", dest: "6013", Type: "001"},
		},
		{
			name:    "empty input",
			raw:     "",
			want:    Message{},
			wantErr: true,
		},
		{
			name:    "non-numeric source retains empty",
			raw:     "abc,6013,001,,,",
			want:    Message{dest: "6013", Type: "001"},
			wantErr: true,
		},
		{
			name:    "out of range dest retains empty",
			raw:     "6010,7000,999,,,",
			want:    Message{source: "6010", Type: "999"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeString(tt.raw)
			if got == nil {
				t.Fatal("DecodeString returned nil message")
			}
			if tt.wantErr != (err != nil) {
				t.Fatalf("DecodeString(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPort) {
				t.Errorf("error = %v, want ErrInvalidPort", err)
			}
			if *got != tt.want {
				t.Errorf("DecodeString(%q) = %+v, want %+v", tt.raw, *got, tt.want)
			}
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	originals := []*Message{
		New(WithSource(6010), WithDest(6013), WithType(TypeSetState), WithName("lrlt1"), WithState(1), WithPayload("192.168.86.25")),
		New(WithSource(6000), WithDest(6999), WithType(TypeGetState), WithPayload("Living Room Light,10.0.0.7")),
		New(WithSource(6013), WithDest(6010), WithType(AckType(TypeGetState)), WithPayload("lamp,10.0.0.7,1")),
		New(WithSource(6010), WithDest(6013), WithType(TypeShutdown)),
	}

	for _, orig := range originals {
		t.Run(orig.Encode(), func(t *testing.T) {
			decoded, err := Decode(orig.Bytes())
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if *decoded != *orig {
				t.Errorf("round trip = %+v, want %+v", *decoded, *orig)
			}
		})
	}
}

func TestEncode_FieldOrder(t *testing.T) {
	m := New(WithSource(6013), WithDest(6010), WithType("161A"), WithName("n"), WithState("0"), WithPayload("a,b"))
	if got, want := m.Encode(), "6013,6010,161A,n,0,a,b"; got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}

	if got, want := New().Encode(), ",,,,,"; got != want {
		t.Errorf("Encode() of fresh message = %q, want %q", got, want)
	}
}

func TestNewAck(t *testing.T) {
	req := New(WithRef("42"), WithSource(6010), WithDest(6013), WithType(TypeGetState), WithName("lamp"), WithState("1"))

	ack := NewAck(req, "6013", "lamp,10.0.0.2,1")

	if ack.Ref != "42" {
		t.Errorf("Ref = %q, want 42", ack.Ref)
	}
	if ack.Source() != "6013" || ack.Dest() != "6010" {
		t.Errorf("ports = (%q, %q), want (6013, 6010)", ack.Source(), ack.Dest())
	}
	if ack.Type != "162A" {
		t.Errorf("Type = %q, want 162A", ack.Type)
	}
	if ack.Name != "" || ack.State != "" {
		t.Errorf("name/state = (%q, %q), want empty", ack.Name, ack.State)
	}
	if !ack.IsAck() || req.IsAck() {
		t.Error("IsAck() mismatch")
	}
}

func TestSetState(t *testing.T) {
	m := New()
	m.SetState(1)
	if m.State != "1" {
		t.Errorf("State = %q, want 1", m.State)
	}
	m.SetState("0")
	if m.State != "0" {
		t.Errorf("State = %q, want 0", m.State)
	}
}

func TestPortInDomain(t *testing.T) {
	cases := map[int]bool{5999: false, 6000: true, 6013: true, 6999: true, 7000: false}
	for port, want := range cases {
		if got := PortInDomain(port); got != want {
			t.Errorf("PortInDomain(%d) = %v, want %v", port, got, want)
		}
	}
}
