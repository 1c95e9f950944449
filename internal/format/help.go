package format

const helpText = "**todoclaw commands**\n" +
	"\n" +
	"**Creating tasks**\n" +
	"`Pay electricity bill @john #finance tomorrow 5pm`\n" +
	"Title \"Pay electricity bill\", assigned to @john, tagged #finance, due tomorrow at 5pm.\n" +
	"Add `urgent`, `important` or `low priority` to set the priority.\n" +
	"\n" +
	"**Managing tasks**\n" +
	"`list` your pending tasks\n" +
	"`list all`, `list completed`, `list overdue`\n" +
	"`done abc123` mark a task complete\n" +
	"`snooze abc123 +2h` or `snooze abc123 tomorrow 9am`\n" +
	"`show abc123` task details\n" +
	"`delete abc123` delete a task you created\n" +
	"`assign abc123 @jane` hand a task you created to someone else\n" +
	"`search invoice` find tasks by title, description or tag\n" +
	"\n" +
	"**Time formats**\n" +
	"`tomorrow`, `next week`, `friday`, `5pm`, `9:30am`, `2026-12-25`\n" +
	"`+30m`, `+2h`, `+1d`, `+1w`\n" +
	"\n" +
	"Every morning I send a summary of overdue tasks and tasks due today."

// Help is the command reference.
func Help() string {
	return helpText
}
