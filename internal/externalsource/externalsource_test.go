package externalsource

import "testing"

func TestQuoteIdentifierRejectsInvalid(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"features", false},
		{"_gid", false},
		{"my_table1", false},
		{"features; DROP TABLE x", true},
		{"", true},
		{"1table", true},
		{`feat"ure`, true},
	}
	for _, c := range cases {
		_, err := quoteIdentifier(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("quoteIdentifier(%q): err=%v, wantErr=%v", c.in, err, c.wantErr)
		}
	}
}

func TestStringifyToFloatToInt(t *testing.T) {
	if stringify(nil) != "" {
		t.Fatalf("stringify(nil) should be empty")
	}
	if stringify("x") != "x" {
		t.Fatalf("stringify string mismatch")
	}
	if toFloat(float64(1.5)) != 1.5 {
		t.Fatalf("toFloat float64 mismatch")
	}
	if toInt(int32(7)) != 7 {
		t.Fatalf("toInt int32 mismatch")
	}
}
