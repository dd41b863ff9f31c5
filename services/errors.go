package services

import (
	"errors"
	"fmt"
)

// Имена коллекций документного хранилища.
const (
	UsersCollection         = "users"
	SessionsCollection      = "sessions"
	RequestsCollection      = "friendRequests"
	FriendsCollection       = "friends"
	ConversationsCollection = "conversations"
	MessagesCollection      = "messages"
)

var (
	// ErrInvalidRelationship - переход не разрешён из текущего
	// состояния пары (например, заявка уже существующему другу).
	ErrInvalidRelationship = errors.New("invalid relationship transition")

	// ErrNotFound - заявка/дружба/диалог с таким id не существует.
	ErrNotFound = errors.New("not found")

	// ErrRemoteFailure - транзиентная ошибка хранилища. Ретраев нет,
	// вызывающий может повторить операцию сам.
	ErrRemoteFailure = errors.New("remote store failure")
)

// PartialSequenceError - многошаговая последовательность координатора
// остановилась на одном из шагов. Откатов нет, сходимость обеспечивает
// последующий refetch.
type PartialSequenceError struct {
	Sequence  string
	Step      string
	Completed []string
	Err       error
}

func (e *PartialSequenceError) Error() string {
	return fmt.Sprintf("sequence %s stopped at step %s: %v", e.Sequence, e.Step, e.Err)
}

func (e *PartialSequenceError) Unwrap() error {
	return e.Err
}

// remoteErr помечает ошибку хранилища как транзиентную.
func remoteErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrRemoteFailure, err)
}
