package bead

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"az-1", false},
		{"az-bqzy", false},
		{"az-1a2b", false},
		{"AZ-1", true},
		{"az_1", true},
		{"az", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := Parse(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}

func TestParseSessionName(t *testing.T) {
	got := ParseSessionName("az-bqzy")
	if !got.IsBead || got.ID != "az-bqzy" {
		t.Fatalf("ParseSessionName(az-bqzy) = %+v", got)
	}

	got = ParseSessionName("random")
	if got.IsBead {
		t.Fatalf("ParseSessionName(random) should not classify as bead, got %+v", got)
	}
}
