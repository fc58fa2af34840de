package extract

import (
	"testing"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Monto", "monto"},
		{"  Monto:  ", "monto"},
		{"Numero de  referencia", "numero de referencia"},
		{"FECHA/HORA:", "fecha/hora"},
		{"Transacción", "transacción"},
		{"", ""},
		{":", ""},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizeLabel(tc.in); got != tc.want {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBuildTableMap_PlainText(t *testing.T) {
	body := "Estimado cliente,\n" +
		"Transacción: Transferencia a Tercero\n" +
		"Monto: USD 1,500.00\n" +
		"Numero de referencia: 239019074182\n" +
		"Gracias por preferirnos."

	tm := BuildTableMap(body, "")

	tests := []struct {
		label string
		want  string
	}{
		{"Monto", "USD 1,500.00"},
		{"monto", "USD 1,500.00"},
		{"Transacción", "Transferencia a Tercero"},
		{"Numero de referencia", "239019074182"},
	}

	for _, tc := range tests {
		got, ok := tm.Lookup(tc.label)
		if !ok {
			t.Errorf("Lookup(%q): missing", tc.label)
			continue
		}
		if got != tc.want {
			t.Errorf("Lookup(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}

	if _, ok := tm.Lookup("Estimado cliente,"); ok {
		t.Error("prose line should not produce a table row")
	}
}

func TestBuildTableMap_HTML(t *testing.T) {
	html := `
	<table cellpadding="0" cellspacing="0" style="width: 100%">
	<tbody>
	<tr>
	<td class="ic-form-label" style="width: 20%">Transacción: </td>
	<td class="ic-form-data">Transferencia a Tercero </td>
	</tr>
	<tr>
	<td class="ic-form-label">Monto: </td>
	<td class="ic-form-data">DOP 10,000.00 </td>
	</tr>
	<tr>
	<td class="ic-form-label">Numero de referencia: </td>
	<td class="ic-form-data">239019074182 </td>
	</tr>
	</tbody>
	</table>`

	tm := BuildTableMap("", html)

	tests := []struct {
		label string
		want  string
	}{
		{"Transacción", "Transferencia a Tercero"},
		{"Monto", "DOP 10,000.00"},
		{"Numero de referencia", "239019074182"},
	}

	for _, tc := range tests {
		got, ok := tm.Lookup(tc.label)
		if !ok {
			t.Errorf("Lookup(%q): missing", tc.label)
			continue
		}
		if got != tc.want {
			t.Errorf("Lookup(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

func TestBuildTableMap_FirstOccurrenceWins(t *testing.T) {
	// Same label twice in plain text.
	tm := BuildTableMap("Monto: USD 100.00\nMonto: USD 999.99\n", "")
	if got, _ := tm.Lookup("Monto"); got != "USD 100.00" {
		t.Errorf("duplicate text label: got %q, want first occurrence", got)
	}

	// Same label twice in HTML.
	html := `<table>
	<tr><td>Monto</td><td>DOP 1.00</td></tr>
	<tr><td>Monto</td><td>DOP 2.00</td></tr>
	</table>`
	tm = BuildTableMap("", html)
	if got, _ := tm.Lookup("Monto"); got != "DOP 1.00" {
		t.Errorf("duplicate html label: got %q, want first occurrence", got)
	}

	// Plain text is scanned before HTML.
	tm = BuildTableMap("Monto: USD 5.00\n", html)
	if got, _ := tm.Lookup("Monto"); got != "USD 5.00" {
		t.Errorf("text/html precedence: got %q, want text value", got)
	}
}

func TestBuildTableMap_Unstructured(t *testing.T) {
	tests := []struct {
		name  string
		plain string
		html  string
	}{
		{"empty body", "", ""},
		{"prose only", "Hello,\nthanks for your purchase.\nBye.", ""},
		{"html without tables", "", "<div><p>Your account was charged.</p></div>"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tm := BuildTableMap(tc.plain, tc.html)
			if len(tm) != 0 {
				t.Errorf("expected empty map, got %v", tm)
			}
		})
	}
}

func TestBuildTableMap_RowWithExtraCells(t *testing.T) {
	html := `<table><tr><td>Origen</td><td>Cuenta 0129</td><td>ignored</td></tr>
	<tr><td>solo una celda</td></tr></table>`

	tm := BuildTableMap("", html)

	if got, ok := tm.Lookup("Origen"); !ok || got != "Cuenta 0129" {
		t.Errorf("Lookup(Origen) = %q, %v; want value from second cell", got, ok)
	}
	if _, ok := tm.Lookup("solo una celda"); ok {
		t.Error("single-cell row should not produce an entry")
	}
}
