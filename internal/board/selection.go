package board

import "github.com/starford/maplab/internal/models"

// Select makes id the single note selected by self. Any other note self had
// selected is cleared first, so two notes are never marked by the same user.
func Select(tx *Tx, self models.Participant, id string) {
	if self.ReadOnly {
		return
	}
	for _, other := range tx.IDs() {
		if other == id {
			continue
		}
		if n, ok := tx.Get(other); ok && n.IsSelectedBy(self.Info.ID) {
			UpdateNote(tx, self, other, models.Patch{SelectedBy: &models.Selection{}})
		}
	}
	UpdateNote(tx, self, id, selectPatch(self))
}

// Deselect clears whatever note self has selected.
func Deselect(tx *Tx, self models.Participant) {
	ClearSelectionForUser(tx, self)
}

func selectPatch(self models.Participant) models.Patch {
	u := self.Info
	return models.Patch{SelectedBy: &models.Selection{User: &u}}
}
