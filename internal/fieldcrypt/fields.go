// internal/fieldcrypt/fields.go
//
// Static allow-list of encrypted attributes per entity type.
//
// Field selection is deliberate and narrow: free-text columns whose
// content is sensitive on its own.  Names and other fields that must stay
// queryable or sortable are excluded on purpose—an encrypted column can
// never appear in a WHERE or ORDER BY.
package fieldcrypt

// EncryptedFields maps entity type → attribute names stored encrypted.
var EncryptedFields = map[string][]string{
	"student": {"medical_notes", "custody_notes"},
	"staff":   {"background_check_notes"},
}

// ShouldEncrypt reports whether entity.field is on the allow-list.
func ShouldEncrypt(entity, field string) bool {
	for _, f := range EncryptedFields[entity] {
		if f == field {
			return true
		}
	}
	return false
}
