package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
)

var purchaseSubjects = map[string]string{
	"tr": "Siparişiniz onaylandı: %s",
	"en": "Your order is confirmed: %s",
}

var purchaseTmpl = map[string]*template.Template{
	"tr": template.Must(template.New("purchase_tr").Parse(`<p>Merhaba {{.BuyerName}},</p>
<p><strong>{{.CourseName}}</strong> eğitimi için ödemeniz alındı.</p>
<p>Sipariş numarası: {{.OrderID}}<br>Tutar: {{.Amount}}</p>
{{if .Enrolled}}<p>Kursa hemen başlayabilirsiniz: <a href="{{.CourseURL}}">{{.CourseURL}}</a></p>{{else}}<p>Aynı e-posta adresiyle kayıt olduğunuzda kursunuz hesabınıza eklenecek.</p>{{end}}
<p>Kampus Akademi</p>`)),
	"en": template.Must(template.New("purchase_en").Parse(`<p>Hi {{.BuyerName}},</p>
<p>We received your payment for <strong>{{.CourseName}}</strong>.</p>
<p>Order number: {{.OrderID}}<br>Amount: {{.Amount}}</p>
{{if .Enrolled}}<p>Start learning now: <a href="{{.CourseURL}}">{{.CourseURL}}</a></p>{{else}}<p>Sign up with this email address and the course will be added to your account.</p>{{end}}
<p>Kampus Akademi</p>`)),
}

var formTmpl = template.Must(template.New("form").Parse(`<p>New {{.Kind}} form submission</p>
<p>{{.FullName}} &lt;{{.Email}}&gt; ({{.Locale}})</p>
<table>{{range .Fields}}<tr><td><strong>{{.Name}}</strong></td><td>{{.Value}}</td></tr>{{end}}</table>
{{if .Attachment}}<p>Attachment stored as {{.Attachment}}</p>{{end}}`))

type purchaseData struct {
	BuyerName  string
	CourseName string
	OrderID    string
	Amount     string
	CourseURL  string
	Enrolled   bool
}

type formField struct {
	Name  string
	Value string
}

type formData struct {
	Kind       string
	FullName   string
	Email      string
	Locale     string
	Fields     []formField
	Attachment string
}

func renderPurchase(locale string, d purchaseData) (subject, body string, err error) {
	tmpl, ok := purchaseTmpl[locale]
	if !ok {
		locale = "tr"
		tmpl = purchaseTmpl[locale]
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render purchase email: %w", err)
	}
	return fmt.Sprintf(purchaseSubjects[locale], d.CourseName), buf.String(), nil
}

func renderForm(d formData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := formTmpl.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render form email: %w", err)
	}
	return fmt.Sprintf("[%s] %s", d.Kind, d.FullName), buf.String(), nil
}

// sortedFields flattens a submission's JSON object into name-ordered rows.
func sortedFields(raw json.RawMessage) []formField {
	var m map[string]interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	out := make([]formField, 0, len(m))
	for k, v := range m {
		out = append(out, formField{Name: k, Value: fmt.Sprint(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
