package sandbox

import (
	"fmt"
	"strings"
)

// WrapPython embeds user code in the python runner. The code body becomes a
// function receiving the decoded stdin JSON as inp; its return value is
// emitted as the contract line.
func WrapPython(code string) string {
	body := "    pass"
	if code != "" {
		lines := strings.Split(code, "\n")
		for i, line := range lines {
			lines[i] = "    " + line
		}
		body = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`import sys, json

try:
    raw = sys.stdin.read()
    inp = json.loads(raw) if raw else None
except Exception:
    inp = None

def __snippet_main(inp):
%s

try:
    result = __snippet_main(inp)
    try:
        print(json.dumps({"success": True, "result": result}))
    except Exception:
        print(json.dumps({"success": True, "result": str(result)}))
except Exception as e:
    print(json.dumps({"success": False, "error": str(e)}))
    sys.exit(1)
`, body)
}

// WrapJavaScript embeds user code in the node runner. The code runs inside
// an async function receiving the decoded stdin JSON as inp, so both return
// and await work.
func WrapJavaScript(code string) string {
	return fmt.Sprintf(`const fs = require('fs');
let input = null;
try {
  const raw = fs.readFileSync(0, 'utf8') || '';
  input = raw ? JSON.parse(raw) : null;
} catch (e) {
  input = null;
}
(async function (inp) {
  try {
    const __ret = await (async function (inp) {
%s
    })(inp);
    console.log(JSON.stringify({ success: true, result: __ret === undefined ? null : __ret }));
  } catch (e) {
    console.log(JSON.stringify({ success: false, error: String(e) }));
    process.exit(1);
  }
})(input);
`, code)
}
