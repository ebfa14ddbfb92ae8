package worker

import (
	"fmt"

	"github.com/phrazzld/drudge/internal/domain"
)

// routeTask resolves a task to the argv of its handler program. The
// switch is exhaustive over the closed task type set; anything else is
// a task-scoped ErrUnknownTaskType failure, never a crash of the run.
//
// Every handler receives the task's own record ID via --parent-task-id
// so follow-up tasks it enqueues can reference their origin.
func routeTask(rec *domain.TaskRecord) ([]string, error) {
	payload := domain.ParsePayload(rec.Payload)

	switch rec.Type {
	case domain.TaskTypePostsCreate:
		return []string{
			"python3", "agents/social-posts/scripts/generate_post.py",
			rec.Project,
			"--parent-task-id", rec.ID,
		}, nil

	case domain.TaskTypeEmailCheck:
		return []string{
			"python3", "agents/email-triage/scripts/agent.py",
			rec.Project, "20", "--status", "unread",
			"--parent-task-id", rec.ID,
		}, nil

	case domain.TaskTypeEmailTasksCreate:
		argv := []string{
			"python3", "agents/email-triage/scripts/create_tasks.py",
			rec.Project,
		}
		if rec.Payload != "" {
			argv = append(argv, "--source", rec.Payload)
		}
		if rec.ID != "" {
			argv = append(argv, "--parent-task-id", rec.ID)
		}
		return argv, nil

	case domain.TaskTypeContentRefresh:
		return []string{
			"python3", "agents/content-library/scripts/refresh_library.py",
		}, nil

	case domain.TaskTypeLessonSend:
		argv := []string{
			"python3", "agents/language-study/scripts/lesson_send.py",
			rec.Project,
		}
		if v := payload.Field("student_id"); v != "" {
			argv = append(argv, "--student-id", v)
		}
		if v := payload.Field("topic"); v != "" {
			argv = append(argv, "--topic", v)
		}
		if v := payload.Field("lesson_type"); v != "" {
			argv = append(argv, "--lesson-type", v)
		}
		if rec.ID != "" {
			argv = append(argv, "--parent-task-id", rec.ID)
		}
		return argv, nil

	case domain.TaskTypeLessonCorrect:
		return []string{
			"python3", "agents/language-study/scripts/lesson_correct.py",
			rec.Project,
		}, nil

	case domain.TaskTypeAgendaRemind:
		return []string{
			"python3", "agents/agenda/scripts/agenda_agent.py",
			rec.Project,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, rec.Type)
	}
}
