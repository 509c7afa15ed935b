package broker

// closeWindowHTML is served after a successful callback; the script closes the
// authorization window so the opener's poll observes completion.
const closeWindowHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>HubSpot authorization complete</title></head>
<body>
<script>window.close();</script>
HubSpot authorization complete. You can close this window.
</body>
</html>
`
