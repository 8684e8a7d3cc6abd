package integration

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
)

func TestClaimLifecycle(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t)
	ctx := context.Background()

	created := e.createClaim(t, c.hospital, c.patient, nil)
	if created.RefNumber != "CLM-00001" {
		t.Errorf("expected CLM-00001, got %s", created.RefNumber)
	}

	t.Run("IntakeNotifiesFirstSuperAdmin", func(t *testing.T) {
		got := e.unreadFor(t, c.superAdmin)
		if len(got) != 1 || got[0].Message != "City Hospital created claim CLM-00001" {
			t.Errorf("unexpected notifications %+v", got)
		}
	})

	t.Run("Assign", func(t *testing.T) {
		if _, err := e.claims.Assign(ctx, c.superAdmin, created.RefNumber, c.admin.ID); err != nil {
			t.Fatalf("assign: %v", err)
		}
		got := e.unreadFor(t, c.admin)
		if len(got) != 1 || got[0].Message != "Asha assigned claim CLM-00001 to you" {
			t.Errorf("unexpected notifications %+v", got)
		}
	})

	t.Run("StatusChange", func(t *testing.T) {
		sent := claims.StatusSentToTPA
		m, err := e.claims.Update(ctx, c.admin, created.RefNumber, claims.UpdateInput{
			Fields: claims.Fields{Status: &sent, TPAName: ptrStr("RAKSHA_TPA")},
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if m.Status != claims.StatusSentToTPA {
			t.Errorf("expected SENT_TO_TPA, got %s", m.Status)
		}

		settled := claims.StatusSettled
		_, err = e.claims.Update(ctx, c.admin, created.RefNumber, claims.UpdateInput{Fields: claims.Fields{Status: &settled}})
		if !apperror.Is(err, apperror.KindInvalidState) {
			t.Errorf("expected invalid transition, got %v", err)
		}
	})

	t.Run("FindOne", func(t *testing.T) {
		d, err := e.claims.FindOne(ctx, c.manager, created.RefNumber)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(d.Documents) != 1 || d.Documents[0].Type != documents.TypeICP {
			t.Errorf("expected the intake document, got %+v", d.Documents)
		}
		if d.Assignee == nil || d.Assignee.Name != "Ravi" {
			t.Errorf("expected assignee Ravi, got %+v", d.Assignee)
		}
		if _, err := e.claims.FindOne(ctx, c.other, created.RefNumber); !apperror.Is(err, apperror.KindForbidden) {
			t.Errorf("expected forbidden for another hospital, got %v", err)
		}
	})

	t.Run("ListScope", func(t *testing.T) {
		otherPatient := e.createPatient(t, c.other, "Dev")
		e.createClaim(t, c.other, otherPatient, nil)

		mine, total, err := e.claims.List(ctx, c.hospital, claims.ListFilter{}, 20, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 1 || len(mine) != 1 || mine[0].RefNumber != "CLM-00001" {
			t.Errorf("hospital should see only its claim, got %d", total)
		}
		_, total, err = e.claims.List(ctx, c.admin, claims.ListFilter{}, 20, 0)
		if err != nil || total != 2 {
			t.Errorf("admin should see 2 claims, got %d (%v)", total, err)
		}
	})
}

func TestClaimRefs_ConcurrentCreatesNeverCollide(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t)

	const n = 20
	var (
		mu   sync.Mutex
		refs []string
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := e.claims.Create(context.Background(), c.hospital, claims.CreateInput{
				PatientID: c.patient,
				Documents: []documents.Input{{FileName: "documents/icp.pdf", Type: documents.TypeICP}},
			})
			if err != nil {
				t.Errorf("create claim: %v", err)
				return
			}
			mu.Lock()
			refs = append(refs, m.RefNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(refs)
	for i := 1; i < len(refs); i++ {
		if refs[i] == refs[i-1] {
			t.Fatalf("duplicate ref %s", refs[i])
		}
	}
	if len(refs) != n || refs[0] != "CLM-00001" || refs[n-1] != "CLM-00020" {
		t.Errorf("expected CLM-00001..CLM-00020, got %v", refs)
	}
}

func TestClaimUpdate_ConcurrentEditsKeepStatus(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t)
	ctx := context.Background()
	m := e.createClaim(t, c.hospital, c.patient, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.claims.Update(ctx, c.hospital, m.RefNumber, claims.UpdateInput{
				Fields: claims.Fields{DoctorName: ptrStr("Dr. Iyer")},
			})
			if err != nil {
				t.Errorf("field edit: %v", err)
			}
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		sent := claims.StatusSentToTPA
		if _, err := e.claims.Update(ctx, c.admin, m.RefNumber, claims.UpdateInput{Fields: claims.Fields{Status: &sent}}); err != nil {
			t.Errorf("status change: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := e.claims.Assign(ctx, c.superAdmin, m.RefNumber, c.admin.ID); err != nil {
			t.Errorf("assign: %v", err)
		}
	}()
	wg.Wait()

	d, err := e.claims.FindOne(ctx, c.superAdmin, m.RefNumber)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.Claim.Status != claims.StatusSentToTPA {
		t.Errorf("expected %s after concurrent edits, got %s", claims.StatusSentToTPA, d.Claim.Status)
	}
	if d.Claim.AssignedTo == nil || *d.Claim.AssignedTo != c.admin.ID {
		t.Errorf("expected assignee %s, got %v", c.admin.ID, d.Claim.AssignedTo)
	}
	if d.Claim.DoctorName == nil || *d.Claim.DoctorName != "Dr. Iyer" {
		t.Errorf("expected doctor name to be kept, got %v", d.Claim.DoctorName)
	}
}

func TestClaimRemove(t *testing.T) {
	e := newEnv(t)
	c := e.seed(t)
	ctx := context.Background()
	m := e.createClaim(t, c.hospital, c.patient, nil)

	if _, err := e.claims.Remove(ctx, c.superAdmin, m.RefNumber); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := e.claims.FindOne(ctx, c.superAdmin, m.RefNumber); err == nil {
		t.Error("expected removed claim to be gone")
	}
	var docs int
	if err := e.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&docs); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if docs != 0 {
		t.Errorf("expected documents to go with the claim, got %d", docs)
	}
}
