package service_test

import (
	"errors"
	"testing"

	"NotaLink/internal/config"
	"NotaLink/internal/modules/user/application/dto/request"
	"NotaLink/internal/modules/user/application/service"
	"NotaLink/internal/modules/user/domain/entity"
	"NotaLink/pkg/util/myjwt"
	"NotaLink/pkg/xerr"
)

type fakeAccountRepo struct {
	byUsername map[string]*entity.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{byUsername: make(map[string]*entity.Account)}
}

func (r *fakeAccountRepo) Create(account *entity.Account) error {
	if _, ok := r.byUsername[account.Username]; ok {
		return errors.New("duplicate username")
	}
	cp := *account
	r.byUsername[account.Username] = &cp
	return nil
}

func (r *fakeAccountRepo) GetByUsername(username string) (*entity.Account, error) {
	if a, ok := r.byUsername[username]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, xerr.ErrAccountNotFound
}

func (r *fakeAccountRepo) GetByUuid(uuid string) (*entity.Account, error) {
	for _, a := range r.byUsername {
		if a.Uuid == uuid {
			cp := *a
			return &cp, nil
		}
	}
	return nil, xerr.ErrAccountNotFound
}

func newAccountService(t *testing.T) (service.AccountService, *fakeAccountRepo) {
	t.Helper()
	conf := config.GetConfig()
	if conf.JwtConfig.Key == "" {
		conf.JwtConfig.Key = "unit-test-signing-key"
	}
	repo := newFakeAccountRepo()
	return service.NewAccountService(repo), repo
}

func TestFirstLoginCreatesAccountAndIssuesToken(t *testing.T) {
	svc, repo := newAccountService(t)

	resp, err := svc.IssueToken(request.TokenRequest{Username: "dev", Password: "hunter2"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !resp.Created {
		t.Fatal("expected first login to create the account")
	}
	if resp.Token == "" || resp.Uuid == "" {
		t.Fatalf("incomplete respond: %+v", resp)
	}

	stored, ok := repo.byUsername["dev"]
	if !ok {
		t.Fatal("account row missing")
	}
	if stored.Password == "hunter2" {
		t.Fatal("password stored in plaintext")
	}

	claims, err := myjwt.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Uuid != resp.Uuid || claims.Username != "dev" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestRepeatLoginKeepsIdentityAndChecksPassword(t *testing.T) {
	svc, _ := newAccountService(t)

	first, err := svc.IssueToken(request.TokenRequest{Username: "dev", Password: "hunter2"})
	if err != nil {
		t.Fatalf("first IssueToken: %v", err)
	}
	second, err := svc.IssueToken(request.TokenRequest{Username: "dev", Password: "hunter2"})
	if err != nil {
		t.Fatalf("second IssueToken: %v", err)
	}
	if second.Created {
		t.Fatal("second login must not create a new account")
	}
	if second.Uuid != first.Uuid {
		t.Fatalf("uuid changed across logins: %s vs %s", first.Uuid, second.Uuid)
	}

	if _, err := svc.IssueToken(request.TokenRequest{Username: "dev", Password: "wrong"}); !errors.Is(err, xerr.ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestDisabledAccountCannotLogin(t *testing.T) {
	svc, repo := newAccountService(t)

	if _, err := svc.IssueToken(request.TokenRequest{Username: "dev", Password: "hunter2"}); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	repo.byUsername["dev"].Status = 1

	if _, err := svc.IssueToken(request.TokenRequest{Username: "dev", Password: "hunter2"}); !errors.Is(err, xerr.ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for disabled account, got %v", err)
	}
}
